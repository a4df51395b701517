package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/chatproxy/internal/model"
)

func testUser() *model.User {
	return &model.User{ID: "user-123", Email: "a@b.com", Name: "A"}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIssueAndVerify_RoundTrip(t *testing.T) {
	m := NewManager("super-secret", 0)

	tok, err := m.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := m.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID() != "user-123" {
		t.Errorf("UserID = %q, want %q", claims.UserID(), "user-123")
	}
	if claims.Email != "a@b.com" {
		t.Errorf("Email = %q, want %q", claims.Email, "a@b.com")
	}
	if claims.Name != "A" {
		t.Errorf("Name = %q, want %q", claims.Name, "A")
	}
	if claims.ID == "" {
		t.Error("jti should be set")
	}
}

func TestIssue_ExpiresAfterTTL(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := NewManager("secret", 0)
	m.now = fixedClock(issuedAt)

	tok, err := m.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := m.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if got := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time); got != 24*time.Hour {
		t.Errorf("exp - iat = %v, want 24h", got)
	}
}

func TestIssue_UniqueJTI(t *testing.T) {
	m := NewManager("secret", time.Hour)

	a, _ := m.Issue(testUser())
	b, _ := m.Issue(testUser())
	ca, _ := m.Verify(a)
	cb, _ := m.Verify(b)

	if ca.ID == cb.ID {
		t.Error("two tokens should not share a jti")
	}
}

func TestIssue_RequiresUserID(t *testing.T) {
	m := NewManager("secret", time.Hour)
	if _, err := m.Issue(&model.User{Email: "a@b.com"}); err == nil {
		t.Error("expected error for user without id")
	}
	if _, err := m.Issue(nil); err == nil {
		t.Error("expected error for nil user")
	}
}

func TestVerify_Expired(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := NewManager("secret", 0)
	m.now = fixedClock(issuedAt)

	tok, err := m.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	m.now = fixedClock(issuedAt.Add(24*time.Hour + time.Second))
	if _, err := m.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}

	m.now = fixedClock(issuedAt.Add(23 * time.Hour))
	if _, err := m.Verify(tok); err != nil {
		t.Fatalf("token should still be valid before expiry: %v", err)
	}
}

func TestVerify_InvalidTokens(t *testing.T) {
	m := NewManager("right-secret", time.Hour)
	valid, err := m.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	wrongSecret, _ := NewManager("wrong-secret", time.Hour).Issue(testUser())

	parts := strings.Split(valid, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    DefaultIssuer,
			ID:        "jti",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    DefaultIssuer,
			ID:        "jti",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("right-secret"))
	if err != nil {
		t.Fatalf("sign hs512 token: %v", err)
	}

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user-123",
			Issuer:  DefaultIssuer,
			ID:      "jti",
		},
	}).SignedString([]byte("right-secret"))
	if err != nil {
		t.Fatalf("sign token without exp: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"malformed", "not.a.jwt"},
		{"garbage", "garbage"},
		{"tampered signature", tampered},
		{"wrong secret", wrongSecret},
		{"alg none", noneToken},
		{"other algorithm", hs512},
		{"missing exp", noExpiry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := m.Verify(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("err = %v, want ErrInvalidToken", err)
			}
			if claims != nil {
				t.Errorf("claims = %+v, want nil", claims)
			}
		})
	}
}

func TestNewManager_DefaultTTL(t *testing.T) {
	if got := NewManager("s", 0).TTL(); got != DefaultTTL {
		t.Errorf("TTL = %v, want %v", got, DefaultTTL)
	}
	if got := NewManager("s", time.Minute).TTL(); got != time.Minute {
		t.Errorf("TTL = %v, want %v", got, time.Minute)
	}
}
