// Package snapshot writes and restores point-in-time backups of a
// partitioned key-value store.
//
// File layout:
//
//	snapshot-<yyyymmddhhmmss>-<seq>.snap
//	[magic:8 "ECHRSNAP"]
//	[HeaderLen:4][HeaderJSON:HeaderLen]
//	[DataLen:4][Data:DataLen]   (MessagePack record sequence, or sealed bytes)
//	[checksum:32 SHA-256 of all bytes above]
//
// Records are read from one consistent view of the source and copied
// verbatim, so a snapshot is a point-in-time cut independent of the record
// codec version. The header counts the records per partition; restore
// decodes exactly that many. When a passphrase is configured the data block is sealed
// with a key derived by Argon2id from the passphrase and a per-snapshot
// salt kept in the header; the header itself is the additional data, so
// it cannot be altered without failing authentication.
//
// Restore of the latest snapshot skips files whose checksum or magic does
// not match and falls back to the next older one.
package snapshot
