// Package memory provides the in-memory e-charlar store.
//
// Users and rooms live in sharded maps keyed by id; messages live in a
// B-tree ordered by their reverse-rank keys, so a room's history is read
// with the same forward prefix scan the persistent engine uses.
//
// Records are held in their encoded form: a returned entity never shares
// memory with the store, and a saved entity can be mutated by the caller
// afterwards without affecting what is stored.
//
// Nothing survives Close. Use it for tests and ephemeral deployments.
package memory
