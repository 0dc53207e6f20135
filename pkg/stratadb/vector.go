package stratadb

import (
	"fmt"
	"sync"
	"time"

	"github.com/stratadb-labs/strata-core-sub010/internal/jsonval"
	"github.com/stratadb-labs/strata-core-sub010/internal/key"
	"github.com/stratadb-labs/strata-core-sub010/internal/store"
	"github.com/stratadb-labs/strata-core-sub010/internal/txn"
	"github.com/stratadb-labs/strata-core-sub010/internal/vector"
)

// registryKey scopes a collection name to its owning run, since a bare
// collection name is only unique within one run's vector keyspace and
// internal/recovery's VectorSink interface carries no namespace, only the
// string a façade chose to call the collection.
func registryKey(ns Namespace, name string) string {
	return ns.RunID + "\x00" + name
}

// vectorRegistry owns every live collection's heap, process-wide. It
// implements recovery.VectorSink so internal/recovery can replay WAL
// vector effects straight into the same heaps the façade reads and writes.
type vectorRegistry struct {
	mu    sync.RWMutex
	heaps map[string]*vector.Heap
}

func newVectorRegistry() *vectorRegistry {
	return &vectorRegistry{heaps: make(map[string]*vector.Heap)}
}

func (r *vectorRegistry) get(rkey string) (*vector.Heap, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.heaps[rkey]
	return h, ok
}

// create registers a fresh heap for rkey, failing if one already exists.
func (r *vectorRegistry) create(rkey string, cfg vector.Config) (*vector.Heap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.heaps[rkey]; ok {
		return nil, &txn.OpError{Kind: txn.KindAlreadyExists, Key: rkey, Message: "vector collection already exists"}
	}
	h := vector.New(cfg)
	r.heaps[rkey] = h
	return h, nil
}

// getOrInfer returns rkey's heap, creating one with a dimension inferred
// from the first replayed embedding if it does not exist yet. Recovery can
// see a vector-insert WAL record before the collection's own config record
// has been read back (they commit at unrelated, interleaved points in the
// log), so the heap that comes into existence here starts with a guessed
// config and is corrected by reconcileConfigs once the real config is
// available.
func (r *vectorRegistry) getOrInfer(rkey string, dimension int) *vector.Heap {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.heaps[rkey]; ok {
		return h
	}
	h := vector.New(vector.Config{Dimension: dimension, Metric: vector.MetricCosine})
	r.heaps[rkey] = h
	return h
}

func (r *vectorRegistry) delete(rkey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.heaps, rkey)
}

// deleteRun drops every collection belonging to runID, cascading a run
// deletion through to its vector heaps.
func (r *vectorRegistry) deleteRun(runID string) {
	prefix := runID + "\x00"
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.heaps {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(r.heaps, k)
		}
	}
}

func (r *vectorRegistry) sizes() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.heaps))
	for k, h := range r.heaps {
		out[k] = h.Len()
	}
	return out
}

// reconcileConfigs runs once after WAL replay and before the database is
// opened for writes: it reads back every persisted collection config
// record and corrects whichever heaps were created mid-replay with an
// inferred config, and creates (empty) heaps for collections that were
// created but never received a vector before the crash.
func (r *vectorRegistry) reconcileConfigs(st *store.Store) {
	for _, e := range st.AllLiveEntries() {
		k, err := key.Decode([]byte(e.EncodedKey))
		if err != nil || k.Tag != key.TagVectorCollection {
			continue
		}
		cfg, err := decodeCollectionConfig(e.Value.Value)
		if err != nil {
			continue
		}
		rkey := registryKey(k.Namespace, string(key.ExtractUserKey(k)))
		r.mu.Lock()
		if h, ok := r.heaps[rkey]; ok {
			h.SetConfig(cfg)
		} else {
			r.heaps[rkey] = vector.New(cfg)
		}
		r.mu.Unlock()
	}
}

func (r *vectorRegistry) InsertWithID(collectionID string, id uint64, embedding []float32, version uint64) error {
	h := r.getOrInfer(collectionID, len(embedding))
	return h.InsertWithID(vector.VectorID(id), embedding)
}

func (r *vectorRegistry) Update(collectionID string, id uint64, embedding []float32, version uint64) error {
	h, ok := r.get(collectionID)
	if !ok {
		return fmt.Errorf("stratadb: vector update replay: unknown collection %q", collectionID)
	}
	_, err := h.Update(vector.VectorID(id), embedding)
	return err
}

func (r *vectorRegistry) Delete(collectionID string, id uint64, version uint64) error {
	h, ok := r.get(collectionID)
	if !ok {
		return fmt.Errorf("stratadb: vector delete replay: unknown collection %q", collectionID)
	}
	h.Delete(vector.VectorID(id))
	return nil
}

// collectionConfig is the small fixed encoding of vector.Config persisted
// under key.TagVectorCollection: a 4-byte dimension followed by the metric
// name, since vector.Config never needs the full generality of the
// order-preserving jsonval codec.
func encodeCollectionConfig(cfg vector.Config) []byte {
	out := make([]byte, 4+len(cfg.Metric))
	b := uint32(cfg.Dimension)
	out[0] = byte(b)
	out[1] = byte(b >> 8)
	out[2] = byte(b >> 16)
	out[3] = byte(b >> 24)
	copy(out[4:], cfg.Metric)
	return out
}

func decodeCollectionConfig(b []byte) (vector.Config, error) {
	if len(b) < 4 {
		return vector.Config{}, fmt.Errorf("stratadb: truncated vector collection config")
	}
	dim := int(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
	return vector.Config{Dimension: dim, Metric: vector.DistanceMetric(b[4:])}, nil
}

// VectorRecord is the KV-visible metadata companion to a vector heap
// entry: every Insert/Update/Delete through VectorStore writes one of
// these under the user-chosen key, alongside the heap effect WAL record,
// per the engine's rule that both views of a vector mutation advance
// together.
type VectorRecord struct {
	UserKey   string
	VectorID  uint64
	Metadata  Value
	Version   uint64
	CreatedAt int64
	UpdatedAt int64
}

func vectorRecordKey(ns Namespace, collection, userKey string) ([]byte, error) {
	k, err := key.KeyFor(ns, key.TagVectorRecord, []byte(collection+"\x00"+userKey))
	if err != nil {
		return nil, err
	}
	return key.Encode(k)
}

func vectorCollectionKey(ns Namespace, collection string) ([]byte, error) {
	k, err := key.KeyFor(ns, key.TagVectorCollection, []byte(collection))
	if err != nil {
		return nil, err
	}
	return key.Encode(k)
}

// VectorStore is the embedding-collection primitive: fixed-dimension
// vectors addressed by a user-chosen key, backed by a heap (for
// similarity iteration) plus a KV metadata record per key (for ordinary
// lookup and cascading deletes).
type VectorStore struct {
	db *Database
}

// VectorStore returns a VectorStore projection over db.
func (db *Database) VectorStore() VectorStore { return VectorStore{db: db} }

// CreateCollection declares a new, empty collection within ns with the
// given fixed dimension and distance metric. Returns ErrAlreadyExists if
// the name is already taken within ns.
func (s VectorStore) CreateCollection(ns Namespace, name string, dimension int, metric DistanceMetric) error {
	cfg := vector.Config{Dimension: dimension, Metric: metric}
	rkey := registryKey(ns, name)
	if _, err := s.db.vectors.create(rkey, cfg); err != nil {
		return err
	}

	confKey, err := vectorCollectionKey(ns, name)
	if err != nil {
		return err
	}
	return s.db.Do(ns.RunID, func(ctx *txn.Context) error {
		return ctx.Put(confKey, encodeCollectionConfig(cfg), 0)
	})
}

func (s VectorStore) heapFor(ns Namespace, name string) (*vector.Heap, error) {
	h, ok := s.db.vectors.get(registryKey(ns, name))
	if !ok {
		return nil, &txn.OpError{Kind: txn.KindCollectionNotFound, Key: name, Message: "vector collection not found"}
	}
	return h, nil
}

// Insert stores embedding under userKey in name, assigning it a fresh
// vector ID, and records a VectorRecord so the entry is also reachable by
// plain key lookup and by the run's cascading delete.
func (s VectorStore) Insert(ns Namespace, name, userKey string, embedding []float32, metadata Value) (VectorID, error) {
	heap, err := s.heapFor(ns, name)
	if err != nil {
		return 0, err
	}

	id, version, err := s.db.coord.VectorInsert(ns.RunID, registryKey(ns, name), heap, embedding)
	if err != nil {
		return 0, err
	}

	rec := VectorRecord{UserKey: userKey, VectorID: uint64(id), Metadata: metadata, Version: version, CreatedAt: time.Now().Unix(), UpdatedAt: time.Now().Unix()}
	encoded, err := jsonval.Marshal(vectorRecordValue(rec))
	if err != nil {
		return 0, err
	}
	recKey, err := vectorRecordKey(ns, name, userKey)
	if err != nil {
		return 0, err
	}
	if err := s.db.Do(ns.RunID, func(ctx *txn.Context) error {
		return ctx.Put(recKey, encoded, 0)
	}); err != nil {
		return 0, err
	}
	return id, nil
}

// Update overwrites the embedding stored at userKey. Returns
// ErrNotFound if userKey has no live entry in name.
func (s VectorStore) Update(ns Namespace, name, userKey string, embedding []float32) error {
	heap, err := s.heapFor(ns, name)
	if err != nil {
		return err
	}
	rec, found, err := s.getRecord(ns, name, userKey)
	if err != nil {
		return err
	}
	if !found {
		return &txn.OpError{Kind: txn.KindNotFound, Key: userKey, Message: "vector not found"}
	}

	ok, version, err := s.db.coord.VectorUpdate(ns.RunID, registryKey(ns, name), heap, vector.VectorID(rec.VectorID), embedding)
	if err != nil {
		return err
	}
	if !ok {
		return &txn.OpError{Kind: txn.KindNotFound, Key: userKey, Message: "vector not found in heap"}
	}

	rec.Version = version
	rec.UpdatedAt = time.Now().Unix()
	encoded, err := jsonval.Marshal(vectorRecordValue(rec))
	if err != nil {
		return err
	}
	recKey, err := vectorRecordKey(ns, name, userKey)
	if err != nil {
		return err
	}
	return s.db.Do(ns.RunID, func(ctx *txn.Context) error {
		return ctx.Put(recKey, encoded, 0)
	})
}

// Delete removes userKey's embedding from name along with its
// VectorRecord. Returns ErrNotFound if userKey has no live entry.
func (s VectorStore) Delete(ns Namespace, name, userKey string) error {
	heap, err := s.heapFor(ns, name)
	if err != nil {
		return err
	}
	rec, found, err := s.getRecord(ns, name, userKey)
	if err != nil {
		return err
	}
	if !found {
		return &txn.OpError{Kind: txn.KindNotFound, Key: userKey, Message: "vector not found"}
	}

	if _, _, err := s.db.coord.VectorDelete(ns.RunID, registryKey(ns, name), heap, vector.VectorID(rec.VectorID)); err != nil {
		return err
	}

	recKey, err := vectorRecordKey(ns, name, userKey)
	if err != nil {
		return err
	}
	return s.db.Do(ns.RunID, func(ctx *txn.Context) error {
		return ctx.Delete(recKey)
	})
}

// Get returns the embedding and metadata stored at userKey.
func (s VectorStore) Get(ns Namespace, name, userKey string) ([]float32, Value, error) {
	heap, err := s.heapFor(ns, name)
	if err != nil {
		return nil, Value{}, err
	}
	rec, found, err := s.getRecord(ns, name, userKey)
	if err != nil {
		return nil, Value{}, err
	}
	if !found {
		return nil, Value{}, &txn.OpError{Kind: txn.KindNotFound, Key: userKey, Message: "vector not found"}
	}
	embedding, ok := heap.Get(vector.VectorID(rec.VectorID))
	if !ok {
		return nil, Value{}, &txn.OpError{Kind: txn.KindNotFound, Key: userKey, Message: "vector not found in heap"}
	}
	return embedding, rec.Metadata, nil
}

// Iter returns every live (id, embedding) pair in name, in ascending
// vector-ID order.
func (s VectorStore) Iter(ns Namespace, name string) ([]VectorEntry, error) {
	heap, err := s.heapFor(ns, name)
	if err != nil {
		return nil, err
	}
	return heap.Iter(), nil
}

func (s VectorStore) getRecord(ns Namespace, name, userKey string) (VectorRecord, bool, error) {
	recKey, err := vectorRecordKey(ns, name, userKey)
	if err != nil {
		return VectorRecord{}, false, err
	}
	shardHash := key.ShardHash(ns.RunID)
	vv, found := s.db.store.Get(shardHash, string(recKey), s.db.store.CurrentVersion())
	if !found {
		return VectorRecord{}, false, nil
	}
	v, err := jsonval.Unmarshal(vv.Value)
	if err != nil {
		return VectorRecord{}, false, err
	}
	rec, err := vectorRecordFromValue(v)
	if err != nil {
		return VectorRecord{}, false, err
	}
	return rec, true, nil
}

// vectorRecordValue/vectorRecordFromValue project VectorRecord through
// the same generic value.Value tree every other façade encodes its state
// as, so VectorRecord rides jsonval's existing codec rather than a
// bespoke binary layout.
func vectorRecordValue(rec VectorRecord) Value {
	m := NewValueMap()
	m.Set("user_key", StringValue(rec.UserKey))
	m.Set("vector_id", Int64Value(int64(rec.VectorID)))
	m.Set("metadata", rec.Metadata)
	m.Set("version", Int64Value(int64(rec.Version)))
	m.Set("created_at", Int64Value(rec.CreatedAt))
	m.Set("updated_at", Int64Value(rec.UpdatedAt))
	return MapValue(m)
}

func vectorRecordFromValue(v Value) (VectorRecord, error) {
	m, err := v.AsMap()
	if err != nil {
		return VectorRecord{}, err
	}
	userKey, _ := m.Get("user_key")
	vectorID, _ := m.Get("vector_id")
	metadata, _ := m.Get("metadata")
	version, _ := m.Get("version")
	createdAt, _ := m.Get("created_at")
	updatedAt, _ := m.Get("updated_at")

	uk, _ := userKey.AsString()
	vid, _ := vectorID.AsInt64()
	ver, _ := version.AsInt64()
	ca, _ := createdAt.AsInt64()
	ua, _ := updatedAt.AsInt64()

	return VectorRecord{
		UserKey:   uk,
		VectorID:  uint64(vid),
		Metadata:  metadata,
		Version:   uint64(ver),
		CreatedAt: ca,
		UpdatedAt: ua,
	}, nil
}
