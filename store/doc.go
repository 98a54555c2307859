// Package store contains concrete implementations of the core.KVStore
// persistence collaborator.
//
// The canonical KVStore interface lives in the core package to avoid
// dependency cycles and keep domain contracts central. Implementation
// packages like this one (in-memory, embedded databases, cloud object
// stores) provide storage backends that can be swapped without touching
// calling code — only the wiring layer decides which implementation to
// instantiate.
package store
