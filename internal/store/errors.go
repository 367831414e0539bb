package store

import "errors"

// Sentinel errors raised by doubt mutations. Plain lookups that find
// nothing return sql.ErrNoRows, matching database/sql conventions; the
// transport layer maps both to user-visible failures.
var (
	ErrInvalidParticipant = errors.New("referenced user is not a valid participant")
	ErrNotParticipant     = errors.New("caller is not a participant of this doubt")
	ErrThreadClosed       = errors.New("doubt thread is closed")
	ErrInvalidTransition  = errors.New("status transition not permitted")
)
