package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"doubtdesk/api/internal/lifecycle"
	"doubtdesk/api/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// querier is satisfied by *sql.DB and *sql.Tx so doubt loading can run
// either standalone or inside a mutation transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ----- users -----

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.Role)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, created_at
		FROM users WHERE email=$1
	`, email).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, created_at
		FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) ListUsersByRole(ctx context.Context, role string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, role, created_at
		FROM users
		WHERE role=$1
		ORDER BY created_at DESC
	`, role)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.Role, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountUsersByRole(ctx context.Context, role string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role=$1`, role).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// ----- refresh sessions (Postgres fallback when Redis is not configured) -----

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.name, u.email, u.role
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.Name, &user.Email, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ----- doubts -----

func (s *PostgresStore) CreateDoubt(ctx context.Context, doubt Doubt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO doubts (id, student_id, teacher_id, subject, topic, description, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, doubt.ID, doubt.StudentID, doubt.TeacherID, doubt.Subject, doubt.Topic, doubt.Description, doubt.Status)
	if err != nil {
		return fmt.Errorf("insert doubt: %w", err)
	}
	return nil
}

const doubtColumns = `
	d.id, d.student_id, d.teacher_id, d.subject, d.topic, d.description, d.status, d.created_at,
	st.name, st.email, te.name, te.email
`

const doubtJoins = `
	FROM doubts d
	JOIN users st ON st.id = d.student_id
	JOIN users te ON te.id = d.teacher_id
`

func scanDoubt(row interface{ Scan(...any) error }) (Doubt, error) {
	var doubt Doubt
	err := row.Scan(
		&doubt.ID, &doubt.StudentID, &doubt.TeacherID,
		&doubt.Subject, &doubt.Topic, &doubt.Description,
		&doubt.Status, &doubt.CreatedAt,
		&doubt.StudentName, &doubt.StudentEmail,
		&doubt.TeacherName, &doubt.TeacherEmail,
	)
	return doubt, err
}

func (s *PostgresStore) GetDoubt(ctx context.Context, doubtID string) (Doubt, error) {
	return getDoubt(ctx, s.db, doubtID)
}

func getDoubt(ctx context.Context, q querier, doubtID string) (Doubt, error) {
	doubt, err := scanDoubt(q.QueryRowContext(ctx, `SELECT `+doubtColumns+doubtJoins+` WHERE d.id=$1`, doubtID))
	if err != nil {
		return Doubt{}, err
	}
	replies, err := loadReplies(ctx, q, []string{doubt.ID})
	if err != nil {
		return Doubt{}, err
	}
	doubt.Replies = replies[doubt.ID]
	if doubt.Replies == nil {
		doubt.Replies = []Reply{}
	}
	return doubt, nil
}

func (s *PostgresStore) ListDoubtsByStudent(ctx context.Context, studentID string) ([]Doubt, error) {
	return s.listDoubts(ctx, `d.student_id`, studentID)
}

func (s *PostgresStore) ListDoubtsByTeacher(ctx context.Context, teacherID string) ([]Doubt, error) {
	return s.listDoubts(ctx, `d.teacher_id`, teacherID)
}

func (s *PostgresStore) listDoubts(ctx context.Context, ownerColumn, ownerID string) ([]Doubt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+doubtColumns+doubtJoins+`
		WHERE `+ownerColumn+`=$1
		ORDER BY d.created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list doubts: %w", err)
	}
	defer rows.Close()

	items := make([]Doubt, 0)
	ids := make([]string, 0)
	for rows.Next() {
		doubt, err := scanDoubt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan doubt: %w", err)
		}
		doubt.Replies = []Reply{}
		items = append(items, doubt)
		ids = append(ids, doubt.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate doubts: %w", err)
	}
	if len(ids) == 0 {
		return items, nil
	}

	replies, err := loadReplies(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if thread, ok := replies[items[i].ID]; ok {
			items[i].Replies = thread
		}
	}
	return items, nil
}

func loadReplies(ctx context.Context, q querier, doubtIDs []string) (map[string][]Reply, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT r.id, r.doubt_id, r.seq, r.sender_id, u.name, r.sender_role, r.message, r.created_at
		FROM doubt_replies r
		JOIN users u ON u.id = r.sender_id
		WHERE r.doubt_id = ANY($1)
		ORDER BY r.doubt_id, r.seq
	`, doubtIDs)
	if err != nil {
		return nil, fmt.Errorf("load replies: %w", err)
	}
	defer rows.Close()

	threads := make(map[string][]Reply)
	for rows.Next() {
		var reply Reply
		if err := rows.Scan(&reply.ID, &reply.DoubtID, &reply.Seq, &reply.SenderID, &reply.SenderName, &reply.SenderRole, &reply.Message, &reply.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		threads[reply.DoubtID] = append(threads[reply.DoubtID], reply)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate replies: %w", err)
	}
	return threads, nil
}

// SetDoubtStatus applies an explicit teacher transition. The doubt row is
// locked for the duration so two concurrent teacher actions serialize and
// the state machine check and the write are one atomic unit.
func (s *PostgresStore) SetDoubtStatus(ctx context.Context, doubtID, teacherID string, next lifecycle.Status) (Doubt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Doubt{}, fmt.Errorf("begin status tx: %w", err)
	}
	defer tx.Rollback()

	var currentStatus, ownerTeacherID string
	err = tx.QueryRowContext(ctx, `
		SELECT status, teacher_id FROM doubts WHERE id=$1 FOR UPDATE
	`, doubtID).Scan(&currentStatus, &ownerTeacherID)
	if err != nil {
		return Doubt{}, err
	}
	if ownerTeacherID != teacherID {
		return Doubt{}, ErrNotParticipant
	}
	if !lifecycle.CanTransition(lifecycle.Status(currentStatus), next) {
		return Doubt{}, ErrInvalidTransition
	}

	if _, err := tx.ExecContext(ctx, `UPDATE doubts SET status=$2 WHERE id=$1`, doubtID, string(next)); err != nil {
		return Doubt{}, fmt.Errorf("update doubt status: %w", err)
	}

	doubt, err := getDoubt(ctx, tx, doubtID)
	if err != nil {
		return Doubt{}, err
	}
	if err := tx.Commit(); err != nil {
		return Doubt{}, fmt.Errorf("commit status tx: %w", err)
	}
	return doubt, nil
}

// AppendReply appends a message to a doubt's thread as one atomic unit:
// participant check, thread-open check, sequence assignment and the
// teacher-first-reply auto-resolve all happen under the doubt's row lock.
// The returned bool reports whether the reply changed the doubt's status.
func (s *PostgresStore) AppendReply(ctx context.Context, doubtID, senderID, message string) (Doubt, Reply, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Doubt{}, Reply{}, false, fmt.Errorf("begin reply tx: %w", err)
	}
	defer tx.Rollback()

	var studentID, teacherID, status string
	err = tx.QueryRowContext(ctx, `
		SELECT student_id, teacher_id, status FROM doubts WHERE id=$1 FOR UPDATE
	`, doubtID).Scan(&studentID, &teacherID, &status)
	if err != nil {
		return Doubt{}, Reply{}, false, err
	}
	if senderID != studentID && senderID != teacherID {
		return Doubt{}, Reply{}, false, ErrNotParticipant
	}
	if !lifecycle.AcceptsReplies(lifecycle.Status(status)) {
		return Doubt{}, Reply{}, false, ErrThreadClosed
	}

	var senderRole string
	if err := tx.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1`, senderID).Scan(&senderRole); err != nil {
		return Doubt{}, Reply{}, false, fmt.Errorf("read sender role: %w", err)
	}

	reply := Reply{
		ID:         util.NewID("rpl"),
		DoubtID:    doubtID,
		SenderID:   senderID,
		SenderRole: senderRole,
		Message:    message,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO doubt_replies (id, doubt_id, seq, sender_id, sender_role, message)
		VALUES ($1, $2, (SELECT COALESCE(MAX(seq), 0) + 1 FROM doubt_replies WHERE doubt_id=$2), $3, $4, $5)
		RETURNING seq, created_at
	`, reply.ID, doubtID, senderID, senderRole, message).Scan(&reply.Seq, &reply.CreatedAt)
	if err != nil {
		return Doubt{}, Reply{}, false, fmt.Errorf("insert reply: %w", err)
	}

	statusChanged := false
	if senderID == teacherID {
		if next, changed := lifecycle.OnTeacherReply(lifecycle.Status(status)); changed {
			if _, err := tx.ExecContext(ctx, `UPDATE doubts SET status=$2 WHERE id=$1`, doubtID, string(next)); err != nil {
				return Doubt{}, Reply{}, false, fmt.Errorf("auto-resolve doubt: %w", err)
			}
			statusChanged = true
		}
	}

	doubt, err := getDoubt(ctx, tx, doubtID)
	if err != nil {
		return Doubt{}, Reply{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return Doubt{}, Reply{}, false, fmt.Errorf("commit reply tx: %w", err)
	}
	reply.SenderName = senderName(doubt, senderID)
	return doubt, reply, statusChanged, nil
}

func senderName(doubt Doubt, senderID string) string {
	if senderID == doubt.StudentID {
		return doubt.StudentName
	}
	return doubt.TeacherName
}

// DoubtStatusCounts returns doubt totals for one side of the relationship,
// keyed by status.
func (s *PostgresStore) DoubtStatusCounts(ctx context.Context, ownerIsTeacher bool, ownerID string) (map[string]int, error) {
	column := "student_id"
	if ownerIsTeacher {
		column = "teacher_id"
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM doubts WHERE `+column+`=$1 GROUP BY status
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("count doubts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan doubt count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate doubt counts: %w", err)
	}
	return counts, nil
}
