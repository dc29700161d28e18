// Package snapshot persists the resting orders of a book together with
// the last command sequence they reflect. Files are msgpack encoded and
// zstd compressed; recovery loads the newest one and replays the entry
// WAL from its sequence.
package snapshot
