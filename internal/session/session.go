// Package session provides the current-session capability consumed by the
// storage service and the backend client. Sign-in and sign-up flows live in
// the UI layer; this package only exposes who is signed in right now.
package session

import (
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// Session identifies the signed-in user and carries the bearer credential
// attached to authenticated backend calls.
type Session struct {
	UserID      string
	AccessToken string
}

// Provider supplies the current session, if any. Implementations are
// injected at construction rather than read from package globals so that
// per-user key namespacing stays testable.
type Provider interface {
	// Current returns the active session and true, or a zero session and
	// false when nobody is signed in.
	Current() (Session, bool)
}

// StaticProvider holds a fixed, swappable session. Used in tests and by the
// dev tooling; the production app wraps its managed-auth SDK instead.
type StaticProvider struct {
	mu      sync.RWMutex
	session Session
	active  bool
}

// NewStaticProvider returns a provider with no active session.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{}
}

// Current implements Provider.
func (p *StaticProvider) Current() (Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session, p.active
}

// SignIn installs the given session as current.
func (p *StaticProvider) SignIn(s Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = s
	p.active = true
}

// SignOut clears the current session.
func (p *StaticProvider) SignOut() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = Session{}
	p.active = false
}

// TokenProvider derives the session from a raw JWT access token. The user id
// is read from the token's subject claim without signature verification; the
// backend is the verifying party and rejects tampered tokens with 401.
type TokenProvider struct {
	mu    sync.RWMutex
	token string
}

// NewTokenProvider returns a provider with no token installed.
func NewTokenProvider() *TokenProvider {
	return &TokenProvider{}
}

// SetToken installs a new access token, replacing any previous one. An empty
// token signs the provider out.
func (p *TokenProvider) SetToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = token
}

// Current implements Provider. Returns false when no token is installed or
// the token carries no subject claim.
func (p *TokenProvider) Current() (Session, bool) {
	p.mu.RLock()
	token := p.token
	p.mu.RUnlock()

	if token == "" {
		return Session{}, false
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return Session{}, false
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Session{}, false
	}

	return Session{UserID: sub, AccessToken: token}, true
}
