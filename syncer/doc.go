// Package syncer keeps shared state consistent across a swarm. A
// Synchronizer runs the full synchronization protocol for one state key at a
// time: it broadcasts a state request, collects the versions the swarm
// members report back, detects conflicts, delegates resolution to a
// core.Resolver, announces the agreed version and persists it.
//
// Between full syncs, agents catch up incrementally via DeltaSync, which
// replays resolved versions newer than a given version number. Local writes
// issued while a sync for the same key is in flight are queued and applied
// after resolution so they are never silently overwritten.
package syncer
