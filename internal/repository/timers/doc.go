// Package timers persists the live timer set to a single JSON document.
//
// The document is the sole source of truth across restarts. Saves rewrite
// the whole file atomically; loads report corruption via CorruptStoreError
// so startup can degrade to an empty set instead of crashing.
package timers
