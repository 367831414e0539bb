package store

import "time"

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// Doubt is the aggregate root: one student's question bound to one teacher,
// with a lifecycle status and an append-only reply thread.
type Doubt struct {
	ID          string
	StudentID   string
	TeacherID   string
	Subject     string
	Topic       string
	Description string
	Status      string
	Replies     []Reply
	CreatedAt   time.Time

	// Joined participant identities, loaded with the doubt.
	StudentName  string
	StudentEmail string
	TeacherName  string
	TeacherEmail string
}

// Reply is a single thread message. Seq is assigned under the doubt's row
// lock, so replies are totally ordered by append sequence rather than by
// wall clock. SenderRole is snapshotted at append time.
type Reply struct {
	ID         string
	DoubtID    string
	Seq        int
	SenderID   string
	SenderName string
	SenderRole string
	Message    string
	CreatedAt  time.Time
}
