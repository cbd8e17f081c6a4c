package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/streamvault/streamvault/internal/models"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "correct horse battery staple") {
		t.Fatalf("expected matching password to check out")
	}
	if CheckPassword(hash, "wrong password") {
		t.Fatalf("expected mismatching password to fail")
	}
}

func TestIssueAndParseAccessToken(t *testing.T) {
	secret := []byte("test-secret")
	userID := models.NewUserID()
	deviceID := models.NewDeviceID()

	token, err := IssueAccessToken(secret, userID, deviceID, true)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	claims, err := ParseAccessToken(secret, token)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.UserID != userID || claims.DeviceID != deviceID || !claims.IsOwner {
		t.Fatalf("claims mismatch: got %+v", claims)
	}
}

func TestParseAccessTokenRejectsWrongSecret(t *testing.T) {
	token, err := IssueAccessToken([]byte("secret-a"), models.NewUserID(), models.NewDeviceID(), false)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if _, err := ParseAccessToken([]byte("secret-b"), token); err == nil {
		t.Fatalf("expected signature mismatch to be rejected")
	}
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	secret := []byte("test-secret")
	userID := models.NewUserID()
	deviceID := models.NewDeviceID()

	// Issue normally, then build a token with an already-past ExpiresAt
	// using the same claims type and signing method the production
	// issuer uses, to avoid depending on wall-clock sleeps in a unit
	// test.
	token, err := IssueAccessToken(secret, userID, deviceID, false)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	claims, err := ParseAccessToken(secret, token)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.Time.After(time.Now()) {
		t.Fatalf("expected freshly issued token to expire in the future")
	}

	past := time.Now().Add(-time.Hour)
	expired := TokenClaims{
		UserID:   userID,
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(past.Add(-AccessTokenTTL)),
			ExpiresAt: jwt.NewNumericDate(past),
		},
	}
	expiredToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expired).SignedString(secret)
	if err != nil {
		t.Fatalf("sign expired token: %v", err)
	}
	if _, err := ParseAccessToken(secret, expiredToken); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestGenerateRefreshTokenIsUniqueAndHashesDeterministically(t *testing.T) {
	a, err := GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}
	b, err := GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct refresh tokens")
	}
	if HashRefreshToken(a) != HashRefreshToken(a) {
		t.Fatalf("expected stable hash for the same token")
	}
	if HashRefreshToken(a) == HashRefreshToken(b) {
		t.Fatalf("expected distinct hashes for distinct tokens")
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("short", 8, false); err == nil {
		t.Fatalf("expected short password to fail minimum length check")
	}
	if err := ValidatePassword("longenoughpassword", 8, false); err != nil {
		t.Fatalf("expected long password without complexity requirement to pass: %v", err)
	}
	if err := ValidatePassword("alllowercase1", 8, true); err == nil {
		t.Fatalf("expected password missing symbol/uppercase variety to fail complexity check")
	}
	if err := ValidatePassword("Aa1!aaaa", 8, true); err != nil {
		t.Fatalf("expected password meeting all 4 classes to pass: %v", err)
	}
}

func TestValidatePIN(t *testing.T) {
	if !ValidatePIN("1234", 4) {
		t.Fatalf("expected 4-digit pin to validate")
	}
	if ValidatePIN("12a4", 4) {
		t.Fatalf("expected non-digit pin to fail")
	}
	if ValidatePIN("12", 4) {
		t.Fatalf("expected too-short pin to fail")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  User@Example.COM "); got != "user@example.com" {
		t.Fatalf("got %q", got)
	}
}
