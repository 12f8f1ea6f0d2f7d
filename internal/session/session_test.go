package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider()

	if _, ok := p.Current(); ok {
		t.Fatal("expected no session before sign-in")
	}

	p.SignIn(Session{UserID: "usr_1", AccessToken: "tok"})
	sess, ok := p.Current()
	if !ok || sess.UserID != "usr_1" || sess.AccessToken != "tok" {
		t.Fatalf("unexpected session: %+v ok=%v", sess, ok)
	}

	p.SignOut()
	if _, ok := p.Current(); ok {
		t.Error("expected no session after sign-out")
	}
}

func TestTokenProvider(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "usr_42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	p := NewTokenProvider()

	if _, ok := p.Current(); ok {
		t.Fatal("expected no session with no token installed")
	}

	p.SetToken(token)
	sess, ok := p.Current()
	if !ok {
		t.Fatal("expected session from installed token")
	}
	if sess.UserID != "usr_42" {
		t.Errorf("expected user id from subject claim, got %q", sess.UserID)
	}
	if sess.AccessToken != token {
		t.Error("expected raw token as access token")
	}

	p.SetToken("")
	if _, ok := p.Current(); ok {
		t.Error("expected empty token to sign out")
	}
}

func TestTokenProvider_Garbage(t *testing.T) {
	p := NewTokenProvider()
	p.SetToken("not-a-jwt")
	if _, ok := p.Current(); ok {
		t.Error("expected no session from unparsable token")
	}
}

func TestTokenProvider_NoSubject(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{}).
		SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	p := NewTokenProvider()
	p.SetToken(token)
	if _, ok := p.Current(); ok {
		t.Error("expected no session from token without subject")
	}
}
