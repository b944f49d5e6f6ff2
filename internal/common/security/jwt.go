package security

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenManager issues and verifies HS256 bearer tokens.
type TokenManager struct {
	auth *jwtauth.JWTAuth
	ttl  time.Duration
	now  func() time.Time
}

func NewTokenManager(secret []byte, ttl time.Duration) *TokenManager {
	return &TokenManager{
		auth: jwtauth.New("HS256", secret, nil),
		ttl:  ttl,
		now:  time.Now,
	}
}

// JWTAuth exposes the verifier for jwtauth.Verifier.
func (m *TokenManager) JWTAuth() *jwtauth.JWTAuth { return m.auth }

func (m *TokenManager) TTL() time.Duration { return m.ttl }

// Generate signs a token carrying the user id, login and role.
func (m *TokenManager) Generate(userID int64, login, role string) (string, error) {
	now := m.now()
	claims := jwt.MapClaims{
		"user_id": strconv.FormatInt(userID, 10),
		"login":   login,
		"role":    role,
		"jti":     uuid.NewString(),
		"exp":     now.Add(m.ttl).Unix(),
		"iat":     now.Unix(),
	}
	_, tokenString, err := m.auth.Encode(claims)
	return tokenString, err
}

// GetUserIDFromClaims reads the subject id the authenticator middleware resolves against the store.
func GetUserIDFromClaims(claims map[string]interface{}) (int64, error) {
	raw, ok := claims["user_id"]
	if !ok {
		return 0, errors.New("user_id claim is missing")
	}
	var id int64
	switch v := raw.(type) {
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, errors.New("user_id claim is not numeric")
		}
		id = parsed
	case float64:
		id = int64(v)
	default:
		return 0, errors.New("user_id claim has unexpected type")
	}
	if id <= 0 {
		return 0, errors.New("user_id claim is not positive")
	}
	return id, nil
}
