// Package app wires the doubt workflow together: accounts and sessions,
// the doubt lifecycle, reply threads, search, and realtime notifications.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"doubtdesk/api/internal/auth"
	"doubtdesk/api/internal/authpw"
	"doubtdesk/api/internal/config"
	"doubtdesk/api/internal/email"
	"doubtdesk/api/internal/lifecycle"
	"doubtdesk/api/internal/search"
	"doubtdesk/api/internal/store"
	"doubtdesk/api/internal/util"
)

// Session is the authenticated caller attached to a request or a websocket
// connection. It is built from a verified access token, never from
// client-supplied identifiers.
type Session struct {
	UserID       string
	Name         string
	Email        string
	Role         string
	JTI          string
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
}

// dataStore is the persistence surface the service needs. *store.PostgresStore
// satisfies it; tests swap in fakes.
type dataStore interface {
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	ListUsersByRole(ctx context.Context, role string) ([]store.User, error)
	CountUsersByRole(ctx context.Context, role string) (int, error)

	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	CreateDoubt(ctx context.Context, doubt store.Doubt) error
	GetDoubt(ctx context.Context, doubtID string) (store.Doubt, error)
	ListDoubtsByStudent(ctx context.Context, studentID string) ([]store.Doubt, error)
	ListDoubtsByTeacher(ctx context.Context, teacherID string) ([]store.Doubt, error)
	SetDoubtStatus(ctx context.Context, doubtID, teacherID string, next lifecycle.Status) (store.Doubt, error)
	AppendReply(ctx context.Context, doubtID, senderID, message string) (store.Doubt, store.Reply, bool, error)
	DoubtStatusCounts(ctx context.Context, ownerIsTeacher bool, ownerID string) (map[string]int, error)

	Ping(ctx context.Context) error
}

// refreshStore holds refresh sessions. Redis when configured, otherwise the
// Postgres store doubles as one.
type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	Ping(ctx context.Context) error
}

// notifier pushes doubt events to connected participants.
type notifier interface {
	DoubtCreated(doubt any, teacherID string)
	ReplyAdded(doubtID string, reply any, participants ...string)
	StatusChanged(doubtID, status string, participants ...string)
}

// searchIndex answers doubt searches and accepts re-index requests.
type searchIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexDoubt(record search.DoubtRecord)
}

// mailer sends the new-doubt notification to the assigned teacher.
type mailer interface {
	IsConfigured() bool
	SendNewDoubtEmail(to string, data email.NewDoubtData) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshStore
	accounts *authpw.Service
	hub      notifier
	search   searchIndex
	mail     mailer
	validate *validator.Validate
}

// New builds the service. sessions may be nil, in which case refresh tokens
// live in Postgres. hub, searchSvc and mailSvc must be non-nil; the search
// service and mailer degrade internally when their backends are absent.
func New(cfg config.Config, pg *store.PostgresStore, sessions refreshStore, hub notifier, searchSvc searchIndex, mailSvc mailer) *Service {
	s := &Service{
		cfg:      cfg,
		store:    pg,
		sessions: sessions,
		accounts: authpw.NewService(pg),
		hub:      hub,
		search:   searchSvc,
		mail:     mailSvc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	if sessions == nil {
		s.sessions = pg
	}
	return s
}

// Ping reports backend health for the readiness probe.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := s.sessions.Ping(ctx); err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	return nil
}

// --- Accounts and sessions ---

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	user, err := s.accounts.SignUp(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Login(ctx context.Context, emailAddr, password string) (Session, error) {
	user, err := s.accounts.SignIn(ctx, emailAddr, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	jti := util.NewID("jti")
	expiresAt := time.Now().Add(s.cfg.AccessTTL)

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.Name, user.Role, jti, expiresAt)
	if err != nil {
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}

	refresh := util.NewID("rft")
	refreshExpiry := time.Now().Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpiry); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		UserID:       user.ID,
		Name:         user.Name,
		Email:        user.Email,
		Role:         user.Role,
		JTI:          jti,
		Token:        token,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken verifies an access token and resolves the caller.
func (s *Service) SessionFromToken(ctx context.Context, raw string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), raw)
	if err != nil {
		return Session{}, err
	}

	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, fmt.Errorf("load user: %w", err)
	}

	return Session{
		UserID:    user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role,
		JTI:       claims.ID,
		Token:     raw,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Refresh rotates a refresh token: the old one is revoked and a fresh
// session is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	hash := auth.HashToken(refreshToken)
	ref, err := s.sessions.LookupRefreshSession(ctx, hash)
	if err != nil {
		return Session{}, err
	}

	user, err := s.store.GetUserByID(ctx, ref.ID)
	if err != nil {
		return Session{}, err
	}

	if err := s.sessions.RevokeRefreshSession(ctx, hash); err != nil {
		return Session{}, fmt.Errorf("revoke refresh session: %w", err)
	}
	return s.issueSession(ctx, user)
}

// Logout revokes the caller's access token and, when supplied, the refresh
// token too.
func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			return fmt.Errorf("revoke refresh session: %w", err)
		}
	}
	return nil
}

// --- Directory and dashboards ---

func (s *Service) ListTeachers(ctx context.Context) ([]map[string]any, error) {
	return s.listUsers(ctx, "teacher")
}

func (s *Service) ListStudents(ctx context.Context) ([]map[string]any, error) {
	return s.listUsers(ctx, "student")
}

func (s *Service) listUsers(ctx context.Context, role string) ([]map[string]any, error) {
	users, err := s.store.ListUsersByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(users))
	for _, u := range users {
		out = append(out, userJSON(u))
	}
	return out, nil
}

func (s *Service) StudentDashboard(ctx context.Context, studentID string) (map[string]any, error) {
	teachers, err := s.store.CountUsersByRole(ctx, "teacher")
	if err != nil {
		return nil, err
	}
	counts, err := s.store.DoubtStatusCounts(ctx, false, studentID)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return map[string]any{
		"studentId": studentID,
		"stats": map[string]any{
			"totalTeachers":  teachers,
			"totalDoubts":    total,
			"pendingDoubts":  counts[string(lifecycle.StatusPending)],
			"resolvedDoubts": counts[string(lifecycle.StatusResolved)],
		},
	}, nil
}

func (s *Service) TeacherDashboard(ctx context.Context, teacherID string) (map[string]any, error) {
	students, err := s.store.CountUsersByRole(ctx, "student")
	if err != nil {
		return nil, err
	}
	counts, err := s.store.DoubtStatusCounts(ctx, true, teacherID)
	if err != nil {
		return nil, err
	}
	total := 0
	active := 0
	for status, n := range counts {
		total += n
		if !lifecycle.Terminal(lifecycle.Status(status)) {
			active += n
		}
	}
	return map[string]any{
		"teacherId": teacherID,
		"stats": map[string]any{
			"totalStudents":  students,
			"totalQuestions": total,
			"activeDoubts":   active,
			"resolvedDoubts": counts[string(lifecycle.StatusResolved)],
		},
	}, nil
}

// --- Doubts ---

// CreateDoubtInput is a student's new question addressed to one teacher.
type CreateDoubtInput struct {
	TeacherID   string `json:"teacherId" validate:"required"`
	Subject     string `json:"subject" validate:"required"`
	Topic       string `json:"topic" validate:"required"`
	Description string `json:"description" validate:"required"`
}

func (s *Service) CreateDoubt(ctx context.Context, studentID string, input CreateDoubtInput) (map[string]any, error) {
	input.TeacherID = strings.TrimSpace(input.TeacherID)
	input.Subject = strings.TrimSpace(input.Subject)
	input.Topic = strings.TrimSpace(input.Topic)
	input.Description = strings.TrimSpace(input.Description)

	if err := s.validate.Struct(input); err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"teacherId, subject, topic and description are required", nil)
	}
	if input.TeacherID == studentID {
		return nil, store.ErrInvalidParticipant
	}

	teacher, err := s.store.GetUserByID(ctx, input.TeacherID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrInvalidParticipant
	}
	if err != nil {
		return nil, err
	}
	if teacher.Role != "teacher" {
		return nil, store.ErrInvalidParticipant
	}

	doubt := store.Doubt{
		ID:          util.NewID("dbt"),
		StudentID:   studentID,
		TeacherID:   teacher.ID,
		Subject:     input.Subject,
		Topic:       input.Topic,
		Description: input.Description,
		Status:      string(lifecycle.StatusPending),
	}
	if err := s.store.CreateDoubt(ctx, doubt); err != nil {
		return nil, err
	}

	created, err := s.store.GetDoubt(ctx, doubt.ID)
	if err != nil {
		return nil, err
	}

	payload := doubtJSON(created)
	s.hub.DoubtCreated(payload, created.TeacherID)
	s.search.IndexDoubt(doubtRecord(created))
	s.notifyTeacherByEmail(created)

	return payload, nil
}

func (s *Service) notifyTeacherByEmail(doubt store.Doubt) {
	if s.mail == nil || !s.mail.IsConfigured() || doubt.TeacherEmail == "" {
		return
	}
	go func() {
		err := s.mail.SendNewDoubtEmail(doubt.TeacherEmail, email.NewDoubtData{
			TeacherName: doubt.TeacherName,
			StudentName: doubt.StudentName,
			Subject:     doubt.Subject,
			Topic:       doubt.Topic,
			Description: doubt.Description,
		})
		if err != nil {
			log.Printf("email: new doubt notification for %s failed: %v", doubt.ID, err)
		}
	}()
}

func (s *Service) ListStudentDoubts(ctx context.Context, studentID string) ([]map[string]any, error) {
	doubts, err := s.store.ListDoubtsByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return doubtsJSON(doubts), nil
}

func (s *Service) ListTeacherDoubts(ctx context.Context, teacherID string) ([]map[string]any, error) {
	doubts, err := s.store.ListDoubtsByTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	return doubtsJSON(doubts), nil
}

// SetDoubtStatus applies an explicit triage decision by the assigned
// teacher. Only pending doubts move; everything else is rejected as an
// invalid transition by the store under a row lock.
func (s *Service) SetDoubtStatus(ctx context.Context, doubtID, teacherID, status string) (map[string]any, error) {
	next := lifecycle.Status(strings.TrimSpace(status))
	if !lifecycle.Valid(next) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			fmt.Sprintf("unknown status %q", status), nil)
	}

	doubt, err := s.store.SetDoubtStatus(ctx, doubtID, teacherID, next)
	if err != nil {
		return nil, err
	}

	s.hub.StatusChanged(doubt.ID, doubt.Status, doubt.StudentID, doubt.TeacherID)
	s.search.IndexDoubt(doubtRecord(doubt))

	return doubtJSON(doubt), nil
}

// AddReply appends a message to a doubt's thread. The first teacher reply
// on an accepted doubt resolves it; that transition is decided in the same
// transaction as the insert and announced here.
func (s *Service) AddReply(ctx context.Context, doubtID, senderID, message string) (map[string]any, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "EMPTY_MESSAGE",
			"reply message cannot be empty", nil)
	}

	doubt, reply, statusChanged, err := s.store.AppendReply(ctx, doubtID, senderID, message)
	if err != nil {
		return nil, err
	}

	s.hub.ReplyAdded(doubt.ID, replyJSON(reply), doubt.StudentID, doubt.TeacherID)
	if statusChanged {
		s.hub.StatusChanged(doubt.ID, doubt.Status, doubt.StudentID, doubt.TeacherID)
	}
	s.search.IndexDoubt(doubtRecord(doubt))

	return doubtJSON(doubt), nil
}

func (s *Service) SearchDoubts(ctx context.Context, userID, text string, limit int) search.Response {
	return s.search.Search(ctx, search.Query{Text: text, OwnerID: userID, Limit: limit})
}

// --- JSON views ---

func userJSON(u store.User) map[string]any {
	return map[string]any{
		"id":    u.ID,
		"name":  u.Name,
		"email": u.Email,
		"role":  u.Role,
	}
}

func doubtJSON(d store.Doubt) map[string]any {
	replies := make([]map[string]any, 0, len(d.Replies))
	for _, r := range d.Replies {
		replies = append(replies, replyJSON(r))
	}
	return map[string]any{
		"id":          d.ID,
		"subject":     d.Subject,
		"topic":       d.Topic,
		"description": d.Description,
		"status":      d.Status,
		"createdAt":   d.CreatedAt,
		"student": map[string]any{
			"id":    d.StudentID,
			"name":  d.StudentName,
			"email": d.StudentEmail,
		},
		"teacher": map[string]any{
			"id":    d.TeacherID,
			"name":  d.TeacherName,
			"email": d.TeacherEmail,
		},
		"replies": replies,
	}
}

func doubtsJSON(doubts []store.Doubt) []map[string]any {
	out := make([]map[string]any, 0, len(doubts))
	for _, d := range doubts {
		out = append(out, doubtJSON(d))
	}
	return out
}

func replyJSON(r store.Reply) map[string]any {
	return map[string]any{
		"id":        r.ID,
		"message":   r.Message,
		"createdAt": r.CreatedAt,
		"sender": map[string]any{
			"id":   r.SenderID,
			"name": r.SenderName,
			"role": r.SenderRole,
		},
	}
}

func doubtRecord(d store.Doubt) search.DoubtRecord {
	var thread strings.Builder
	for i, r := range d.Replies {
		if i > 0 {
			thread.WriteString("\n")
		}
		thread.WriteString(r.Message)
	}
	return search.DoubtRecord{
		ID:          d.ID,
		Subject:     d.Subject,
		Topic:       d.Topic,
		Description: d.Description,
		Status:      d.Status,
		StudentID:   d.StudentID,
		TeacherID:   d.TeacherID,
		Thread:      thread.String(),
	}
}
