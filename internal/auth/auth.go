// Package auth implements password/PIN hashing, JWT access tokens, and
// opaque refresh tokens for the device trust flow described by the
// server's setup and login endpoints.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/streamvault/streamvault/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrWeakPassword       = errors.New("password does not meet requirements")
	ErrInvalidToken       = errors.New("invalid token")
)

// TokenClaims is the JWT payload for a short-lived access token. A
// device registration binds a refresh token to one DeviceID; the
// access token carries that same DeviceID so downstream handlers can
// tell which device is making a request without a second lookup.
type TokenClaims struct {
	UserID   models.UserID   `json:"uid"`
	DeviceID models.DeviceID `json:"did"`
	IsOwner  bool            `json:"own"`
	jwt.RegisteredClaims
}

// AccessTokenTTL is how long an issued JWT remains valid before the
// client must exchange its refresh token for a new one.
const AccessTokenTTL = 15 * time.Minute

// RefreshTokenTTL is how long an opaque refresh token stays valid
// server-side.
const RefreshTokenTTL = 30 * 24 * time.Hour

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateRefreshToken produces a fresh opaque token. The raw value is
// returned to the client and never stored; only its hash is persisted
// in AuthToken.TokenHash, so a leaked database dump can't be replayed
// as a session.
func GenerateRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashRefreshToken returns the value stored alongside an AuthToken row.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// IssueAccessToken signs a JWT for the given identity, valid for
// AccessTokenTTL.
func IssueAccessToken(secret []byte, userID models.UserID, deviceID models.DeviceID, isOwner bool) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		UserID:   userID,
		DeviceID: deviceID,
		IsOwner:  isOwner,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseAccessToken validates signature and expiry and returns the
// embedded claims.
func ParseAccessToken(secret []byte, tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func ValidatePassword(password string, minLength int, requireComplexity bool) error {
	if len(password) < minLength {
		return ErrWeakPassword
	}

	if !requireComplexity {
		return nil
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasDigit = true
		case unicode.IsPunct(ch) || unicode.IsSymbol(ch):
			hasSymbol = true
		}
	}

	met := 0
	for _, ok := range []bool{hasUpper, hasLower, hasDigit, hasSymbol} {
		if ok {
			met++
		}
	}
	if met < 3 {
		return ErrWeakPassword
	}
	return nil
}

func ValidatePIN(pin string, minLength int) bool {
	if len(pin) < minLength {
		return false
	}
	for _, ch := range pin {
		if !unicode.IsDigit(ch) {
			return false
		}
	}
	return true
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
