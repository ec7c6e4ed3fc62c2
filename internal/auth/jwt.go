package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// --- Context Keys ---

// contextKey is a custom type used for context keys to avoid collisions.
type contextKey string

const (
	// CallerKey holds the authenticated caller's subject string.
	CallerKey contextKey = "caller"
)

// --- JWT Claims ---

// CustomClaims carries the standard JWT claims. The subject identifies the
// calling system.
// Match this with the claims struct in api/middleware.go
type CustomClaims struct {
	jwt.RegisteredClaims
}

// NewAccessToken generates a new JWT access token for the given caller.
func NewAccessToken(subject string, jwtSecret string, expiration time.Duration) (string, error) {
	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "radreport-backend",
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedToken, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Error signing JWT token")
		return "", err
	}

	return signedToken, nil
}
