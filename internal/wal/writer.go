package wal

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stratadb-labs/strata-core-sub010/pkg/log"
	"github.com/stratadb-labs/strata-core-sub010/pkg/metrics"
)

// Durability selects how aggressively the log is flushed and fsynced.
type Durability int

const (
	// Volatile disables the log entirely; transactions commit on
	// in-memory install only and do not survive a crash.
	Volatile Durability = iota
	// Buffered queues records in memory and flushes on a timer or once
	// a pending-write backlog threshold is reached.
	Buffered
	// Strict fsyncs every record before the appending call returns.
	Strict
)

func (d Durability) String() string {
	switch d {
	case Volatile:
		return "volatile"
	case Buffered:
		return "buffered"
	case Strict:
		return "strict"
	default:
		return "unknown"
	}
}

// Options configures an opened WAL.
type Options struct {
	Path             string
	Durability       Durability
	FlushInterval    time.Duration // Buffered only; default 50ms if zero
	MaxPendingWrites int           // Buffered only; default 256 if zero
}

// WAL is the append-only log file. A single committing goroutine appends
// under wal.mu at a time; a background flusher drains the buffer in
// Buffered mode. Close guarantees flush-then-join: no acknowledged
// commit is lost by Close returning before its bytes are durable.
type WAL struct {
	mu         sync.Mutex
	durability Durability
	file       *os.File
	writer     *bufio.Writer
	pending    int
	maxPending int

	flushInterval time.Duration
	flushSignal   chan struct{}
	stopCh        chan struct{}
	doneCh        chan struct{}

	log zerolog.Logger
}

// Open creates or appends to the log file at opts.Path (ignored in
// Volatile mode, where no file is opened at all) and starts the
// background flusher for Buffered mode.
func Open(opts Options) (*WAL, error) {
	w := &WAL{
		durability:    opts.Durability,
		flushInterval: opts.FlushInterval,
		maxPending:    opts.MaxPendingWrites,
		flushSignal:   make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		log:           log.WithComponent("wal"),
	}
	if w.flushInterval <= 0 {
		w.flushInterval = 50 * time.Millisecond
	}
	if w.maxPending <= 0 {
		w.maxPending = 256
	}

	if opts.Durability == Volatile {
		close(w.doneCh)
		return w, nil
	}

	f, err := os.OpenFile(opts.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", opts.Path, err)
	}
	w.file = f
	w.writer = bufio.NewWriter(f)

	if opts.Durability == Buffered {
		go w.flushLoop()
	} else {
		close(w.doneCh)
	}

	w.log.Info().Str("path", opts.Path).Str("durability", opts.Durability.String()).Msg("wal opened")
	return w, nil
}

func (w *WAL) flushLoop() {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.flushLocked(); err != nil {
				w.log.Error().Err(err).Msg("periodic wal flush failed")
			}
		case <-w.flushSignal:
			if err := w.flushLocked(); err != nil {
				w.log.Error().Err(err).Msg("backlog-triggered wal flush failed")
			}
		case <-w.stopCh:
			if err := w.flushLocked(); err != nil {
				w.log.Error().Err(err).Msg("final wal flush on close failed")
			}
			return
		}
	}
}

func (w *WAL) flushLocked() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doFlushLocked()
}

func (w *WAL) doFlushLocked() error {
	if w.writer == nil {
		return nil
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.WALFsyncDuration)

	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("wal: flush: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: fsync: %w", err)
	}
	w.pending = 0
	return nil
}

// AppendBeginTxn appends a BeginTxn record.
func (w *WAL) AppendBeginTxn(r BeginTxn) error { return w.append(TagBeginTxn, encodeBeginTxn(r)) }

// AppendWrite appends a Write record.
func (w *WAL) AppendWrite(r Write) error { return w.append(TagWrite, encodeWrite(r)) }

// AppendDelete appends a Delete record.
func (w *WAL) AppendDelete(r Delete) error { return w.append(TagDelete, encodeDelete(r)) }

// AppendCommitTxn appends a CommitTxn record. In Strict mode this is the
// call that blocks on fsync before a caller's commit() may return.
func (w *WAL) AppendCommitTxn(r CommitTxn) error { return w.append(TagCommitTxn, encodeCommitTxn(r)) }

// AppendAbortTxn appends an advisory AbortTxn record.
func (w *WAL) AppendAbortTxn(r AbortTxn) error { return w.append(TagAbortTxn, encodeAbortTxn(r)) }

// AppendCheckpoint appends a checkpoint marker record.
func (w *WAL) AppendCheckpoint(r Checkpoint) error {
	return w.append(TagCheckpoint, encodeCheckpoint(r))
}

// AppendVectorInsert/Update/Delete append the vector heap's WAL-level
// effects.
func (w *WAL) AppendVectorInsert(r VectorInsert) error {
	return w.append(TagVectorInsert, encodeVectorInsert(r))
}
func (w *WAL) AppendVectorUpdate(r VectorUpdate) error {
	return w.append(TagVectorUpdate, encodeVectorUpdate(r))
}
func (w *WAL) AppendVectorDelete(r VectorDelete) error {
	return w.append(TagVectorDelete, encodeVectorDelete(r))
}

func (w *WAL) append(tag RecordTag, payload []byte) error {
	if w.durability == Volatile {
		return nil
	}

	frame := encodeFrame(tag, payload)

	w.mu.Lock()
	if _, err := w.writer.Write(frame); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("wal: append %s: %w", tag, err)
	}
	w.pending++
	metrics.WALAppendsTotal.WithLabelValues(tag.String()).Inc()

	switch w.durability {
	case Strict:
		err := w.doFlushLocked()
		w.mu.Unlock()
		return err
	case Buffered:
		trigger := w.pending >= w.maxPending
		w.mu.Unlock()
		if trigger {
			select {
			case w.flushSignal <- struct{}{}:
			default:
			}
		}
		return nil
	default:
		w.mu.Unlock()
		return nil
	}
}

// Close flushes and fsyncs any buffered records, joins the background
// flusher if one is running, and closes the underlying file. It never
// drops an already-acknowledged (Strict-mode-returned, or
// backlog-flushed) commit.
func (w *WAL) Close() error {
	if w.durability == Volatile {
		return nil
	}

	if w.durability == Buffered {
		close(w.stopCh)
		<-w.doneCh
	} else if err := w.flushLocked(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("wal: close: %w", err)
	}
	return nil
}
