package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/faucetdb/widgets/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoJWTSecret        = errors.New("auth.jwt_secret is not configured")
)

// KeyAuthenticator checks a presented key against the active key set.
// *store.Store implements it.
type KeyAuthenticator interface {
	AuthenticateAPIKey(ctx context.Context, key string) (model.AuthResult, error)
}

// AdminPrincipal identifies the holder of a provisioning token.
type AdminPrincipal struct {
	Subject   string
	ExpiresAt time.Time
}

type AuthService struct {
	keys      KeyAuthenticator
	jwtSecret []byte
	logger    *slog.Logger
}

func NewAuthService(keys KeyAuthenticator, jwtSecret string, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AuthService{
		keys:      keys,
		jwtSecret: []byte(jwtSecret),
		logger:    logger,
	}
}

// Authenticate validates a raw API key. A key that is unknown or deactivated
// yields model.AuthInvalid and a nil error; the error is reserved for the
// store being unreachable.
func (s *AuthService) Authenticate(ctx context.Context, rawKey string) (model.AuthResult, error) {
	res, err := s.keys.AuthenticateAPIKey(ctx, rawKey)
	if err != nil {
		s.logger.Error("api key lookup failed", "key_prefix", model.KeyPrefix(rawKey), "error", err)
		return model.AuthInvalid, err
	}
	if !res.Valid() {
		s.logger.Debug("api key rejected", "key_prefix", model.KeyPrefix(rawKey))
	}
	return res, nil
}

// HasJWTSecret reports whether admin tokens can be issued and verified.
func (s *AuthService) HasJWTSecret() bool {
	return len(s.jwtSecret) > 0
}

// ValidateJWT verifies an admin bearer token.
func (s *AuthService) ValidateJWT(ctx context.Context, tokenStr string) (*AdminPrincipal, error) {
	if !s.HasJWTSecret() {
		return nil, ErrNoJWTSecret
	}
	claims := &jwtClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(jwtIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if !token.Valid || !claims.Admin {
		return nil, ErrInvalidCredentials
	}

	p := &AdminPrincipal{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// IssueJWT creates a signed admin token for subject.
func (s *AuthService) IssueJWT(ctx context.Context, subject string, ttl time.Duration) (string, error) {
	if !s.HasJWTSecret() {
		return "", ErrNoJWTSecret
	}
	now := time.Now()
	claims := jwtClaims{
		Admin: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    jwtIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

const jwtIssuer = "widgets"

type jwtClaims struct {
	Admin bool `json:"admin"`
	jwt.RegisteredClaims
}
