package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

const legacyTestSecret = "legacy-test-secret"

func signLegacy(t *testing.T, method jwt.SigningMethod, secret string) string {
	t.Helper()
	claims := LegacyClaims{
		UserID: "user-42",
		Email:  "user@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "storyforge-api",
		},
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestValidateLegacyToken_RoundTrip(t *testing.T) {
	token := signLegacy(t, jwt.SigningMethodHS256, legacyTestSecret)

	claims, err := ValidateLegacyToken(token, legacyTestSecret)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "user-42" {
		t.Errorf("expected userId user-42, got %q", claims.UserID)
	}
	if claims.Email != "user@example.com" {
		t.Errorf("expected email carried through, got %q", claims.Email)
	}
}

func TestValidateLegacyToken_WrongSecret(t *testing.T) {
	token := signLegacy(t, jwt.SigningMethodHS256, legacyTestSecret)

	if _, err := ValidateLegacyToken(token, "a-different-secret"); err == nil {
		t.Error("expected a signature error for the wrong secret")
	}
}

func TestValidateLegacyToken_RejectsOtherAlgorithms(t *testing.T) {
	token := signLegacy(t, jwt.SigningMethodHS512, legacyTestSecret)

	if _, err := ValidateLegacyToken(token, legacyTestSecret); err == nil {
		t.Error("expected HS512 tokens to be rejected")
	}
}

func TestValidateLegacyToken_Garbage(t *testing.T) {
	if _, err := ValidateLegacyToken("not-a-jwt", legacyTestSecret); err == nil {
		t.Error("expected a parse error")
	}
}
