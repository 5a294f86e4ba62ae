// Package server hosts a small Fiber application that behaves like the remote
// object store photocache talks to: it issues short-lived signed fetch URLs,
// accepts uploads and deletes behind a bearer token, and streams blobs from a
// local directory. It exists for development and end-to-end tests; production
// deployments point ObjectStore.Endpoint at the real service instead.
package server
