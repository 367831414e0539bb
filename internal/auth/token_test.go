package auth

import (
	"errors"
	"testing"
	"time"
)

var testSecret = []byte("test-secret")

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken(testSecret, "usr_1", "Asha", "student", "jti_1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	claims, err := ParseToken(testSecret, token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "usr_1" {
		t.Errorf("subject = %q, want usr_1", claims.Subject)
	}
	if claims.Name != "Asha" || claims.Role != "student" {
		t.Errorf("claims = %q/%q, want Asha/student", claims.Name, claims.Role)
	}
	if claims.ID != "jti_1" {
		t.Errorf("jti = %q, want jti_1", claims.ID)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := IssueToken(testSecret, "usr_1", "Asha", "student", "jti_1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := ParseToken([]byte("other-secret"), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseToken_Expired(t *testing.T) {
	token, err := IssueToken(testSecret, "usr_1", "Asha", "student", "jti_1", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := ParseToken(testSecret, token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseToken_Garbage(t *testing.T) {
	if _, err := ParseToken(testSecret, "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestHashTokenIsStable(t *testing.T) {
	a := HashToken("refresh-value")
	b := HashToken("refresh-value")
	if a != b {
		t.Error("hashing the same value twice differs")
	}
	if a == HashToken("other-value") {
		t.Error("different values hash equal")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}
