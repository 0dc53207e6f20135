// Package vector implements the vector heap: per-collection contiguous
// storage of fixed-dimension embeddings with monotonic vector IDs, slot
// reuse, and deterministic ascending-ID iteration.
//
// Grounded on the same explicit-versioning style as internal/store (bump
// a version counter on every mutation) but specialized to a single
// contiguous float32 buffer per collection.
package vector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stratadb-labs/strata-core-sub010/pkg/log"
)

// VectorID is a collection-scoped identity. IDs are never reused within a
// collection's lifetime even after a Delete.
type VectorID uint64

// ErrDimensionMismatch is returned when an embedding's length does not
// match the collection's configured dimension.
type ErrDimensionMismatch struct {
	Want int
	Got  int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector: dimension mismatch: want %d, got %d", e.Want, e.Got)
}

// DistanceMetric names the similarity function a collection was created
// with. Computing distances is out of scope for the heap itself — this
// is carried only as part of the immutable collection config.
type DistanceMetric string

const (
	MetricCosine     DistanceMetric = "cosine"
	MetricDotProduct DistanceMetric = "dot"
	MetricEuclidean  DistanceMetric = "euclidean"
)

// Config is the immutable-after-creation collection configuration.
type Config struct {
	Dimension int
	Metric    DistanceMetric
}

// Heap is one collection's vector storage: a linear float32 buffer, an
// id->offset map (the sole source of liveness truth), a free-slot list
// for reuse, and a monotonic next-ID counter that must be durable across
// recovery.
type Heap struct {
	mu sync.RWMutex

	config Config

	data       []float32
	idToOffset map[VectorID]int // offset is in units of `dimension` floats, not raw float index
	freeSlots  []int
	nextID     VectorID
	version    uint64

	log zerolog.Logger
}

// New creates an empty heap for the given collection config.
func New(cfg Config) *Heap {
	return &Heap{
		config:     cfg,
		idToOffset: make(map[VectorID]int),
		log:        log.WithComponent("vector-heap"),
	}
}

func (h *Heap) Config() Config { return h.config }

// SetConfig overwrites h's config in place. Used only by recovery's
// post-replay reconciliation pass: a heap that came into existence
// because a WAL vector-insert record was replayed before its owning
// collection's config record had a chance to be read back starts with an
// inferred dimension and a default metric, and is corrected once the
// persisted config is available.
func (h *Heap) SetConfig(cfg Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.config = cfg
}

// Version returns the heap's internal mutation counter, bumped on every
// insert/update/delete. Unrelated to the engine-wide commit version; the
// transaction coordinator pairs each heap mutation with a commit version
// via the WAL's heap-effect record.
func (h *Heap) Version() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

func (h *Heap) NextID() VectorID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.nextID
}

// Len reports the number of live vectors.
func (h *Heap) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToOffset)
}

func (h *Heap) validateDimension(embedding []float32) error {
	if len(embedding) != h.config.Dimension {
		return &ErrDimensionMismatch{Want: h.config.Dimension, Got: len(embedding)}
	}
	return nil
}

// Insert allocates a fresh, strictly-increasing VectorID and stores
// embedding, reusing a freed slot if one is available.
func (h *Heap) Insert(embedding []float32) (VectorID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.validateDimension(embedding); err != nil {
		return 0, err
	}

	id := h.nextID
	h.nextID++

	offset := h.allocateSlotLocked()
	h.writeSlotLocked(offset, embedding)
	h.idToOffset[id] = offset
	h.version++

	h.log.Debug().Uint64("vector_id", uint64(id)).Int("offset", offset).Msg("inserted vector")
	return id, nil
}

// InsertWithID is the replay helper used by recovery: it installs
// embedding at exactly the given id, without minting a new one. Calling
// it in ascending-id order keeps nextID correctly advanced as a side
// effect.
func (h *Heap) InsertWithID(id VectorID, embedding []float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.validateDimension(embedding); err != nil {
		return err
	}

	offset := h.allocateSlotLocked()
	h.writeSlotLocked(offset, embedding)
	h.idToOffset[id] = offset
	if id >= h.nextID {
		h.nextID = id + 1
	}
	h.version++
	return nil
}

// SetNextID restores the monotonic ID counter during recovery, before
// the heap is reopened for writes.
func (h *Heap) SetNextID(id VectorID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if id > h.nextID {
		h.nextID = id
	}
}

// Update overwrites the embedding stored at id in place. Returns false if
// id is not live.
func (h *Heap) Update(id VectorID, embedding []float32) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.validateDimension(embedding); err != nil {
		return false, err
	}

	offset, ok := h.idToOffset[id]
	if !ok {
		return false, nil
	}
	h.writeSlotLocked(offset, embedding)
	h.version++
	return true, nil
}

// Delete removes id from the liveness map, zeroes its slot, and pushes
// the slot onto the free list for reuse. The identity itself is never
// reused.
func (h *Heap) Delete(id VectorID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	offset, ok := h.idToOffset[id]
	if !ok {
		return false
	}
	delete(h.idToOffset, id)
	h.zeroSlotLocked(offset)
	h.freeSlots = append(h.freeSlots, offset)
	h.version++

	h.log.Debug().Uint64("vector_id", uint64(id)).Msg("deleted vector")
	return true
}

// Get returns a copy of the embedding stored at id. The returned slice is
// owned by the caller, not aliased into the heap's buffer, so later
// Update/Delete calls cannot corrupt it out from under a concurrent reader.
func (h *Heap) Get(id VectorID) ([]float32, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	offset, ok := h.idToOffset[id]
	if !ok {
		return nil, false
	}
	dim := h.config.Dimension
	out := make([]float32, dim)
	copy(out, h.data[offset*dim:offset*dim+dim])
	return out, true
}

// Entry pairs a live vector's ID with its embedding, for Iter.
type Entry struct {
	ID        VectorID
	Embedding []float32
}

// Iter returns every live vector in ascending VectorID order. The
// returned slice is a fresh, independent snapshot; mutating the heap
// afterward does not affect it.
func (h *Heap) Iter() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]VectorID, 0, len(h.idToOffset))
	for id := range h.idToOffset {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	dim := h.config.Dimension
	out := make([]Entry, len(ids))
	for i, id := range ids {
		offset := h.idToOffset[id]
		emb := make([]float32, dim)
		copy(emb, h.data[offset*dim:offset*dim+dim])
		out[i] = Entry{ID: id, Embedding: emb}
	}
	return out
}

// allocateSlotLocked returns an offset to write into, reusing a freed
// slot if one exists, otherwise growing the buffer by one vector's worth
// of floats. Caller must hold h.mu.
func (h *Heap) allocateSlotLocked() int {
	if n := len(h.freeSlots); n > 0 {
		offset := h.freeSlots[n-1]
		h.freeSlots = h.freeSlots[:n-1]
		return offset
	}
	dim := h.config.Dimension
	offset := len(h.data) / dim
	h.data = append(h.data, make([]float32, dim)...)
	return offset
}

func (h *Heap) writeSlotLocked(offset int, embedding []float32) {
	dim := h.config.Dimension
	copy(h.data[offset*dim:offset*dim+dim], embedding)
}

func (h *Heap) zeroSlotLocked(offset int) {
	dim := h.config.Dimension
	for i := offset * dim; i < offset*dim+dim; i++ {
		h.data[i] = 0
	}
}

// FreeSlotCount reports the number of reusable storage slots — exposed
// for checkpoint persistence and metrics.
func (h *Heap) FreeSlotCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.freeSlots)
}

// Snapshot is the full persisted state of a heap, used by checkpoint
// writers and recovery.
type Snapshot struct {
	Config     Config
	NextID     VectorID
	FreeSlots  []int
	Entries    []Entry // only live entries; offsets are reassigned on restore in ID order
}

// TakeSnapshot captures h's full state for persistence.
func (h *Heap) TakeSnapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]VectorID, 0, len(h.idToOffset))
	for id := range h.idToOffset {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	dim := h.config.Dimension
	entries := make([]Entry, len(ids))
	for i, id := range ids {
		offset := h.idToOffset[id]
		emb := make([]float32, dim)
		copy(emb, h.data[offset*dim:offset*dim+dim])
		entries[i] = Entry{ID: id, Embedding: emb}
	}

	return Snapshot{
		Config:    h.config,
		NextID:    h.nextID,
		FreeSlots: append([]int(nil), h.freeSlots...),
		Entries:   entries,
	}
}

// Restore rebuilds a heap from a previously taken Snapshot, in ascending
// ID order, using InsertWithID so liveness and identity match the
// snapshot exactly. Free slots from the original layout are not
// preserved across a restore: InsertWithID always appends, so the
// rebuilt heap has a denser buffer with no holes and an empty free list.
func Restore(snap Snapshot) *Heap {
	h := New(snap.Config)
	for _, e := range snap.Entries {
		_ = h.InsertWithID(e.ID, e.Embedding)
	}
	h.SetNextID(snap.NextID)
	return h
}
