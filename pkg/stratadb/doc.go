// Package stratadb is the embeddable entry point: it wires the sharded
// store, write-ahead log, transaction coordinator, and vector heaps
// built in internal/ into a single Database handle, and exposes the
// primitive façades (KVStore, EventLog, StateCell, TraceStore, JsonStore,
// VectorStore, RunIndex) that agent runtimes actually call.
//
// Every façade is a stateless projection holding only a *Database
// reference. Their store writes go through a *txn.Context, the same
// object an embedder can obtain directly via Database.Begin for a
// multi-primitive atomic transaction; single-call reads go straight to
// the store, and vector heap mutations go through the coordinator's
// Vector* calls.
package stratadb
