// Package storage implements the local bucket-rooted object store and the
// uploads watcher that turns externally finalized objects into pipeline
// notifications.
package storage
