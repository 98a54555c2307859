package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidProposal is returned for duplicate unresolved proposal ids,
	// votes recorded against already-finalized proposals, and participant
	// sets too small for the chosen algorithm's fault tolerance.
	ErrInvalidProposal = errors.New("invalid proposal")

	// ErrUnknownAlgorithm is returned when a proposal names an algorithm that
	// was never registered and no fallback is configured.
	ErrUnknownAlgorithm = errors.New("unknown consensus algorithm")

	// ErrSyncTimeout is returned when a synchronization round collected zero
	// responses before its deadline. Prior local state is left untouched.
	ErrSyncTimeout = errors.New("state sync timed out with no responses")
)

// ResolutionError reports that conflicting state versions could not be merged:
// an unrecognized crdt_type, or a malformed vector clock entry. The resolver
// fails loudly rather than guessing, since silently dropping conflicting data
// would lose writes.
type ResolutionError struct {
	StateKey string
	Reason   string
	Err      error
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolution failed for %q: %s: %v", e.StateKey, e.Reason, e.Err)
	}
	return fmt.Sprintf("resolution failed for %q: %s", e.StateKey, e.Reason)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *ResolutionError) Unwrap() error { return e.Err }
