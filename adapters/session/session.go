// Package session supplies the bearer credential used for pricing calls and
// fans out the "unauthorized" notification raised by the pricing adapter.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	qerrors "easyquote/internal/errors"
)

// Static is a credential provider holding one token for the whole session
type Static struct {
	mu    sync.RWMutex
	token string
	now   func() time.Time
}

// NewStatic creates a provider for token
func NewStatic(token string) *Static {
	return &Static{token: strings.TrimSpace(token), now: time.Now}
}

// Token returns the current token. A missing token, or a JWT whose exp claim has
// passed, is a precondition failure; opaque tokens are returned as they are.
func (s *Static) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token == "" {
		return "", qerrors.Precondition("no session token: sign in or set EASYQUOTE_TOKEN")
	}
	if exp, ok := Expiry(token); ok && !exp.After(s.now()) {
		return "", qerrors.Precondition("session expired").WithContext("expired_at", exp.UTC().Format(time.RFC3339))
	}
	return token, nil
}

// Set replaces the token
func (s *Static) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = strings.TrimSpace(token)
}

// Clear forgets the token
func (s *Static) Clear() {
	s.Set("")
}

// Expiry reads the exp claim of a JWT without verifying its signature. The pricing
// API verifies the token; this check only avoids sending one already known to be stale.
func Expiry(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Invalidator distributes the unauthorized notification to its subscribers
type Invalidator struct {
	mu       sync.Mutex
	handlers []func(error)
	count    int
}

// Subscribe registers fn to be called on every unauthorized notification
func (i *Invalidator) Subscribe(fn func(error)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.handlers = append(i.handlers, fn)
}

// Notify reports an authorization failure; it matches the pricing client's OnUnauthorized hook
func (i *Invalidator) Notify(err error) {
	i.mu.Lock()
	i.count++
	handlers := append([]func(error){}, i.handlers...)
	i.mu.Unlock()

	for _, fn := range handlers {
		fn(err)
	}
}

// Count returns how many notifications were received
func (i *Invalidator) Count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.count
}
