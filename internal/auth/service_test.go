package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestIssueAndValidateToken(t *testing.T) {
	svc := NewService("test-secret")
	want := Identity{UserID: uuid.New(), Email: "ada@example.com", Role: "admin"}

	tok, err := svc.IssueToken(want, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	got, err := svc.ValidateToken(context.Background(), tok)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if got != want {
		t.Errorf("identity: got %+v, want %+v", got, want)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	svc := NewService("test-secret")
	id := Identity{UserID: uuid.New(), Role: "user"}

	expired := NewService("test-secret")
	expired.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	expiredTok, _ := expired.IssueToken(id, time.Hour)

	foreignTok, _ := NewService("other-secret").IssueToken(id, time.Hour)

	noneTok, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": id.UserID.String()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	badSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "not-a-uuid",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))

	tests := map[string]string{
		"garbage":      "not.a.token",
		"expired":      expiredTok,
		"wrong secret": foreignTok,
		"alg none":     noneTok,
		"bad subject":  badSubject,
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(context.Background(), tok)
			if !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}
