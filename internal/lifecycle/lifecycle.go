// Package lifecycle holds the doubt status state machine. The rules are
// pure functions; the store applies them inside a row-locked transaction.
package lifecycle

// Status is the lifecycle state of a doubt.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusResolved Status = "resolved"
)

// Valid reports whether s is a known status value.
func Valid(s Status) bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusResolved:
		return true
	default:
		return false
	}
}

// Terminal reports whether no transition may leave s.
func Terminal(s Status) bool {
	return s == StatusRejected || s == StatusResolved
}

// CanTransition reports whether an explicit teacher action may move a doubt
// from one status to another. Only pending doubts can be triaged; resolved
// is never reached explicitly, it is a side effect of the teacher's first
// reply (see OnTeacherReply).
func CanTransition(from, to Status) bool {
	if from != StatusPending {
		return false
	}
	return to == StatusAccepted || to == StatusRejected
}

// OnTeacherReply returns the status a doubt moves to when its teacher posts
// a reply, and whether that reply changes the status at all. A teacher reply
// on an accepted doubt resolves it; any later reply leaves status alone.
func OnTeacherReply(current Status) (Status, bool) {
	if current == StatusAccepted {
		return StatusResolved, true
	}
	return current, false
}

// AcceptsReplies reports whether the reply thread is still open. Rejection
// closes the thread; a resolved doubt keeps accepting replies so the
// conversation can continue after the teacher has answered.
func AcceptsReplies(s Status) bool {
	return s != StatusRejected
}
