package news

import "errors"

var (
	// ErrMalformedInput marks a raw hit or request that cannot be used. Per-item; never fatal to a run.
	ErrMalformedInput = errors.New("malformed input")
	// ErrCollaboratorTimeout marks an external call that exceeded its deadline on every attempt.
	ErrCollaboratorTimeout = errors.New("collaborator timeout")
	// ErrCollaboratorError marks an external call that failed on every attempt.
	ErrCollaboratorError = errors.New("collaborator error")
	// ErrProviderUnavailable aborts a run before staging because no search query succeeded.
	ErrProviderUnavailable = errors.New("search provider unavailable")
	// ErrRunInProgress rejects a trigger while another collection run holds the lock.
	ErrRunInProgress = errors.New("collection run already in progress")
	// ErrNotFound marks an unknown story id.
	ErrNotFound = errors.New("not found")
)

// IsCollaboratorFailure reports whether err came from an exhausted collaborator call.
func IsCollaboratorFailure(err error) bool {
	return errors.Is(err, ErrCollaboratorTimeout) || errors.Is(err, ErrCollaboratorError)
}
