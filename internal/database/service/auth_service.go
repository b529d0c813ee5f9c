package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/config"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is the authenticated caller carried by an access token
type Identity struct {
	UserID uuid.UUID
	Email  string
}

// AuthService verifies access tokens issued by the identity provider
type AuthService interface {
	ValidateAccessToken(tokenString string) (*Identity, error)
	IssueAccessToken(userID uuid.UUID, email string, ttl time.Duration) (string, error)
}

type accessClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type authService struct {
	jwtSecret []byte
}

// NewAuthService creates a new auth service instance
func NewAuthService(cfg *config.Config) AuthService {
	return &authService{jwtSecret: []byte(cfg.JWTSecret)}
}

func (s *authService) ValidateAccessToken(tokenString string) (*Identity, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	}, jwt.WithExpirationRequired())

	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return nil, ErrInvalidToken
	}

	return &Identity{UserID: userID, Email: claims.Email}, nil
}

// IssueAccessToken signs a token for local tooling and tests
func (s *authService) IssueAccessToken(userID uuid.UUID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := accessClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
