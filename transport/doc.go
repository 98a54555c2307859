// Package transport provides the in-process reference implementation of the
// core.Broadcaster collaborator plus the msgpack codec used to serialize
// coordination messages and state versions.
//
// The InMemoryBus fans messages out to per-swarm subscriber channels and is
// intended for tests, examples and single-process swarms. Distributed
// deployments supply their own Broadcaster backed by a real message fabric;
// the codec helpers (EncodeMessage/DecodeMessage) are the stable wire form
// for such bridges.
package transport
