// Package cache defines the two-tier store that backs every hub: a disk
// store laying files out as StoragePath/<hub>/<maven path> with JSON
// sidecars carrying digests and validation timestamps, an in-memory LRU in
// front of it for small hot files (metadata, poms, checksums), and a
// negative cache remembering paths every upstream reported missing. Writes
// use temp file + rename and are verified before commit, so a reader only
// ever observes complete, checksum-checked entries.
package cache
