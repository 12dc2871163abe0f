package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"streamhub/internal/core/domain"
	"streamhub/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by access tokens issued for the streaming site.
type Claims struct {
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username,omitempty"`
	Role     domain.Role   `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthService is the Session Authenticator: it verifies a signed token
// and resolves the subject against the identity store. The role in the
// token is informational; the stored identity is authoritative.
type AuthService struct {
	jwtSecret      []byte
	accessTokenTTL time.Duration
	identities     ports.IdentityStore
	now            func() time.Time
}

func NewAuthService(jwtSecret string, accessTokenTTL time.Duration, identities ports.IdentityStore) *AuthService {
	return &AuthService{
		jwtSecret:      []byte(jwtSecret),
		accessTokenTTL: accessTokenTTL,
		identities:     identities,
		now:            time.Now,
	}
}

// GenerateToken issues an HS256 access token for identity.
func (s *AuthService) GenerateToken(identity domain.Identity) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID:   identity.UserID,
		Username: identity.DisplayName,
		Role:     identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, domain.ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

// Authenticate verifies token and loads the identity it names.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.Identity, error) {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	identity, err := s.identities.FindIdentityByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("lookup identity %s: %w", claims.UserID, err)
	}
	if !identity.Role.Valid() {
		identity.Role = domain.RoleViewer
	}
	return identity, nil
}
