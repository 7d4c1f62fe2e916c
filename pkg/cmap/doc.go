// Package cmap provides a concurrent map for e-charlar.
//
// The map is split into a power-of-two number of shards, each guarded by
// its own RWMutex. Keys are routed to shards by a murmur3 hash of their
// byte form.
//
// Usage:
//
//	m := cmap.NewWithKeyFunc[uuid.UUID, []byte](32, func(id uuid.UUID) []byte { return id[:] })
//	m.Set(id, record)
//	val, ok := m.Get(id)
package cmap
