// Package core contains the domain contracts and value types shared by every
// swarmcoord package: votes, proposals, consensus results, state versions and
// vector clocks, plus the collaborator interfaces (Algorithm, Resolver,
// Broadcaster, KVStore) implemented elsewhere.
//
// Keeping contracts central avoids dependency cycles between the consensus,
// conflict and syncer packages and lets callers depend on interfaces rather
// than concrete store or transport types.
package core
