// Package domain defines the core domain models for e-charlar.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling. This package contains:
//
//   - User: a chat participant
//   - Room: a chat room with owner and member sets
//   - Message: an immutable message with a kind-tagged payload
//   - Cursor, Page: history pagination values
//   - Errors: the error taxonomy shared by every storage engine
//
// Identity of every entity is its random 128-bit ID; Equal compares IDs
// only.
package domain
