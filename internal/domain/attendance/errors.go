package attendance

import "errors"

var (
	// ErrAlreadyCheckedIn indicates a session is already open.
	ErrAlreadyCheckedIn = errors.New("already checked in")
	// ErrNoActiveSession indicates check-out was requested without an open session.
	ErrNoActiveSession = errors.New("no active session")
)
