package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	qerrors "easyquote/internal/errors"
)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return token
}

// TestStaticToken checks the credential preconditions
func TestStaticToken(t *testing.T) {
	valid := signed(t, time.Now().Add(time.Hour))
	expired := signed(t, time.Now().Add(-time.Hour))

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"empty", "", true},
		{"blank", "   ", true},
		{"opaque", "abc123", false},
		{"valid jwt", valid, false},
		{"expired jwt", expired, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewStatic(tt.token).Token(context.Background())
			if tt.wantErr {
				if !qerrors.IsType(err, qerrors.TypePrecondition) {
					t.Errorf("expected precondition failure, got %v", err)
				}
				return
			}
			if err != nil || got == "" {
				t.Errorf("expected token, got %q, %v", got, err)
			}
		})
	}
}

// TestStaticClear checks a cleared session fails fast
func TestStaticClear(t *testing.T) {
	s := NewStatic("abc")
	s.Clear()
	if _, err := s.Token(context.Background()); err == nil {
		t.Errorf("expected failure after Clear")
	}
	s.Set("def")
	if tok, err := s.Token(context.Background()); err != nil || tok != "def" {
		t.Errorf("expected def, got %q, %v", tok, err)
	}
}

// TestExpiry checks exp extraction
func TestExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	got, ok := Expiry(signed(t, exp))
	if !ok || !got.Equal(exp) {
		t.Errorf("expected %s, got %s (%v)", exp, got, ok)
	}
	if _, ok := Expiry("opaque-token"); ok {
		t.Errorf("opaque token must have no expiry")
	}
}

// TestInvalidatorFansOut checks every subscriber is notified
func TestInvalidatorFansOut(t *testing.T) {
	var inv Invalidator
	s := NewStatic("abc")
	var seen []error
	inv.Subscribe(func(error) { s.Clear() })
	inv.Subscribe(func(err error) { seen = append(seen, err) })

	inv.Notify(errors.New("401"))

	if inv.Count() != 1 || len(seen) != 1 {
		t.Errorf("expected one notification, got %d/%d", inv.Count(), len(seen))
	}
	if _, err := s.Token(context.Background()); err == nil {
		t.Errorf("subscriber did not clear the session")
	}
}
