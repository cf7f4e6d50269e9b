package service

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"espresso_rig/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

const testSigningKey = "test-signing-key"

// newTestAuth returns a service for operator "barista" with the given password.
func newTestAuth(t *testing.T, password string) *AuthService {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	svc, err := NewAuthService(config.AuthConfig{
		Username:        "barista",
		PasswordHash:    hash,
		SigningKey:      testSigningKey,
		TokenTTLMinutes: 60,
	})
	if err != nil {
		t.Fatalf("NewAuthService failed: %v", err)
	}
	return svc
}

// --- HashPassword tests ---

func TestHashPassword_VerifiesAndDiffersFromRaw(t *testing.T) {
	hash, err := HashPassword("s3cr3t")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if hash == "s3cr3t" {
		t.Errorf("expected hashed password not equal to raw password")
	}
	if err := verifyPassword(hash, "s3cr3t"); err != nil {
		t.Errorf("hash does not verify with original password: %v", err)
	}
}

func TestHashPassword_Empty(t *testing.T) {
	if _, err := HashPassword("   "); err == nil {
		t.Fatalf("expected error for empty password, got nil")
	}
}

// --- GenerateToken tests ---

func TestAuthService_GenerateToken_Success(t *testing.T) {
	svc := newTestAuth(t, "letmein")

	token, err := svc.GenerateToken("barista", "letmein")
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token")
	}

	name, err := svc.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if name != "barista" {
		t.Fatalf("expected subject barista, got %q", name)
	}
}

func TestAuthService_GenerateToken_Rejected(t *testing.T) {
	svc := newTestAuth(t, "correct")

	tests := []struct{ name, user, pass string }{
		{"wrong_password", "barista", "wrong"},
		{"wrong_user", "eve", "correct"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GenerateToken(tt.user, tt.pass)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got: %v", err)
			}
		})
	}
}

func TestAuthService_GenerateToken_NoPasswordConfigured(t *testing.T) {
	svc, err := NewAuthService(config.AuthConfig{Username: "barista"})
	if err != nil {
		t.Fatalf("NewAuthService failed: %v", err)
	}
	if _, err := svc.GenerateToken("barista", ""); !errors.Is(err, ErrAuthDisabled) {
		t.Fatalf("expected ErrAuthDisabled, got: %v", err)
	}
}

// --- ParseToken tests ---

func TestAuthService_ParseToken_Malformed(t *testing.T) {
	svc := newTestAuth(t, "pw")
	_, err := svc.ParseToken("not-a-jwt")
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for malformed token, got %v", err)
	}
}

func signClaims(t *testing.T, key []byte, subject string, exp time.Time) string {
	t.Helper()
	tk := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(exp.Add(-time.Hour)),
		},
	})
	s, err := tk.SignedString(key)
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}
	return s
}

func TestAuthService_ParseToken_InvalidSignature(t *testing.T) {
	svc := newTestAuth(t, "pw")
	bad := signClaims(t, []byte("different-key"), "barista", time.Now().Add(time.Hour))

	if _, err := svc.ParseToken(bad); err == nil {
		t.Fatalf("expected signature verification error")
	}
}

func TestAuthService_ParseToken_Expired(t *testing.T) {
	svc := newTestAuth(t, "pw")
	expired := signClaims(t, []byte(testSigningKey), "barista", time.Now().Add(-2*time.Hour))

	if _, err := svc.ParseToken(expired); err == nil {
		t.Fatalf("expected error for expired token")
	}
}

func TestAuthService_ParseToken_OtherSubject(t *testing.T) {
	svc := newTestAuth(t, "pw")
	tok := signClaims(t, []byte(testSigningKey), "mallory", time.Now().Add(time.Hour))

	if _, err := svc.ParseToken(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAuthService_ParseToken_UnexpectedAlg(t *testing.T) {
	svc := newTestAuth(t, "pw")

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	now := time.Now()
	tk := jwt.NewWithClaims(jwt.SigningMethodRS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "barista",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	tokenStr, err := tk.SignedString(privateKey)
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}

	if _, err := svc.ParseToken(tokenStr); err == nil {
		t.Fatalf("expected error due to unexpected signing method")
	}
}

func TestAuthService_RandomKeyWhenUnset(t *testing.T) {
	a, _ := NewAuthService(config.AuthConfig{Username: "barista"})
	b, _ := NewAuthService(config.AuthConfig{Username: "barista"})
	if string(a.signingKey) == string(b.signingKey) || len(a.signingKey) != 32 {
		t.Fatalf("expected distinct random 32-byte keys")
	}
}
