// Package cache persists completed conversions and per-host fetch pacing
// state in SQLite. GIF payloads live as files next to the database;
// the table keeps only metadata, so lookups stay cheap and the blobs can
// be streamed straight from disk.
package cache
