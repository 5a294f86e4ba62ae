// Package cache defines the disk-backed store that maps a remote object key to
// a flat file under StoragePath/<namespace>/<sanitized key>. Writes go through a
// temp file + rename so readers never observe partial content, and concurrent
// writers of the same key are serialized by a per-entry lock. The blob cache
// uses one namespace as its image directory; the development object store
// uses another as its bucket. No manifest is kept: presence on disk is the
// only persisted state.
package cache
