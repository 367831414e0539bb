package authpw

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"

	"doubtdesk/api/internal/store"
)

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]store.User // keyed by email
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]store.User)}
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[email]; ok {
		return u, nil
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeUserStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.Email] = user
	return nil
}

func validRequest() SignUpRequest {
	return SignUpRequest{
		Name:     "Asha",
		Email:    "Asha@Example.Com",
		Password: "long-enough-password",
		Role:     "student",
	}
}

func TestSignUpNormalizesAndHashes(t *testing.T) {
	fs := newFakeUserStore()
	svc := NewService(fs)

	user, err := svc.SignUp(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if user.Email != "asha@example.com" {
		t.Errorf("email = %q, want lowercased", user.Email)
	}
	if user.PasswordHash == "" || user.PasswordHash == "long-enough-password" {
		t.Error("password was not hashed")
	}
	if !strings.HasPrefix(user.ID, "usr_") {
		t.Errorf("user ID = %q, want usr_ prefix", user.ID)
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	fs := newFakeUserStore()
	svc := NewService(fs)

	if _, err := svc.SignUp(context.Background(), validRequest()); err != nil {
		t.Fatalf("first SignUp: %v", err)
	}
	if _, err := svc.SignUp(context.Background(), validRequest()); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignUpValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SignUpRequest)
	}{
		{"missing name", func(r *SignUpRequest) { r.Name = "  " }},
		{"bad email", func(r *SignUpRequest) { r.Email = "not-an-email" }},
		{"short password", func(r *SignUpRequest) { r.Password = "short" }},
		{"unknown role", func(r *SignUpRequest) { r.Role = "admin" }},
		{"empty role", func(r *SignUpRequest) { r.Role = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(newFakeUserStore())
			req := validRequest()
			tc.mutate(&req)

			_, err := svc.SignUp(context.Background(), req)
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if validationErr.Message == "" {
				t.Error("validation error has no message")
			}
		})
	}
}

func TestSignInRoundTrip(t *testing.T) {
	fs := newFakeUserStore()
	svc := NewService(fs)

	created, err := svc.SignUp(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	user, err := svc.SignIn(context.Background(), "ASHA@example.com", "long-enough-password")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if user.ID != created.ID {
		t.Errorf("signed in as %q, want %q", user.ID, created.ID)
	}
}

func TestSignInRejectsWrongPassword(t *testing.T) {
	fs := newFakeUserStore()
	svc := NewService(fs)
	if _, err := svc.SignUp(context.Background(), validRequest()); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	if _, err := svc.SignIn(context.Background(), "asha@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSignInUnknownEmail(t *testing.T) {
	svc := NewService(newFakeUserStore())
	if _, err := svc.SignIn(context.Background(), "nobody@example.com", "whatever-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
