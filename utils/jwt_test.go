package utils

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func fixedClock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func TestNewTokenManagerRequiresSecret(t *testing.T) {
	if _, err := NewTokenManager("", time.Hour); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func TestTokenLifetime(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tm, err := NewTokenManager("secret", time.Hour)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	tm.WithClock(fixedClock(&now))

	token, exp, err := tm.Issue(42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.Equal(now.Add(time.Hour)) {
		t.Fatalf("expiry = %v", exp)
	}

	issuedAt := now
	for _, tc := range []struct {
		at    time.Time
		valid bool
	}{
		{issuedAt, true},
		{issuedAt.Add(59 * time.Minute), true},
		{issuedAt.Add(time.Hour - time.Second), true},
		{issuedAt.Add(time.Hour + time.Second), false},
		{issuedAt.Add(2 * time.Hour), false},
	} {
		now = tc.at
		id, _, err := tm.Parse(token)
		if tc.valid && (err != nil || id != 42) {
			t.Errorf("at %v: expected valid token, got id=%d err=%v", tc.at.Sub(issuedAt), id, err)
		}
		if !tc.valid && !errors.Is(err, ErrInvalidToken) {
			t.Errorf("at %v: expected ErrInvalidToken, got %v", tc.at.Sub(issuedAt), err)
		}
	}
}

func TestTokenCarriesOnlySubject(t *testing.T) {
	tm, _ := NewTokenManager("secret", time.Hour)
	token, _, err := tm.Issue(7)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		t.Fatalf("parse unverified: %v", err)
	}
	for key := range claims {
		switch key {
		case "sub", "exp", "iat":
		default:
			t.Errorf("unexpected claim %q", key)
		}
	}
	if claims["sub"] != "7" {
		t.Errorf("sub = %v", claims["sub"])
	}
}

func TestParseRejectsForgedTokens(t *testing.T) {
	tm, _ := NewTokenManager("secret", time.Hour)
	other, _ := NewTokenManager("another-secret", time.Hour)

	foreign, _, _ := other.Issue(1)
	if _, _, err := tm.Parse(foreign); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("token signed with another secret accepted: %v", err)
	}

	good, _, _ := tm.Issue(1)
	parts := strings.Split(good, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, _, err := tm.Parse(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("tampered signature accepted: %v", err)
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, _, err := tm.Parse(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("alg=none token accepted: %v", err)
	}

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "1"}).SignedString([]byte("secret"))
	if _, _, err := tm.Parse(noExpiry); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("token without expiry accepted: %v", err)
	}

	badSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	if _, _, err := tm.Parse(badSubject); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("non-numeric subject accepted: %v", err)
	}

	if _, _, err := tm.Parse("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage accepted: %v", err)
	}
}
