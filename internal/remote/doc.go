// Package remote talks to the remote object store that hosts exhibition
// images. The store hands out short-lived fetch URLs for stable object keys
// and accepts uploads and deletes; Downloader pulls the bytes behind a fetch
// URL. Failures surface as ErrNotFound or *TransportError and are never
// retried here.
package remote
