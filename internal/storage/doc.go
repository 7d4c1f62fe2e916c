// Package storage provides the persistent store for e-charlar users,
// rooms and room message history.
//
// Architecture:
//
//   - KVEngine: an ordered, partitioned key-value engine (BadgerEngine)
//   - KVStore: the Store implementation on top of a KVEngine
//   - memory.Store: an in-memory Store selected with engine "memory"
//   - InstrumentedStore: Prometheus counters and latencies around any Store
//
// Records are encoded by package codec. Message keys are built by package
// keyenc so that a forward scan of a room prefix returns the room's
// history newest first, and pagination is a seek plus a bounded scan.
package storage
