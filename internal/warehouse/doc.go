// Package warehouse persists structured rows produced by the load stage.
// Backends register themselves by DSN scheme; sqlite is the default and
// postgres is available for shared deployments. Loads run as staging
// upserts followed by an insert-missing merge, so reloading a file never
// duplicates rows.
package warehouse
