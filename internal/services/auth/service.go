// Package auth is the ambient login/JWT-issuance collaborator: the minimal
// seam the Rate Governor's login backoff and the HTTP layer's bearer auth
// need. Full account CRUD is out of core scope.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"screenguard/internal/apperr"
	"screenguard/internal/ports"
)

// Claims is the access token's payload.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type Service struct {
	users      ports.UserRepository
	backoff    ports.LoginBackoff
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

func New(users ports.UserRepository, backoff ports.LoginBackoff, signingSecret string, issuer string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{users: users, backoff: backoff, signingKey: []byte(signingSecret), issuer: issuer, ttl: ttl}
}

// Login verifies credentials, consulting the login backoff state machine
// before and after the attempt.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	if locked, backoff, err := s.backoff.IsLocked(ctx, username); err != nil {
		return "", apperr.Wrap(apperr.StoreUnavailable, "check login backoff", err)
	} else if locked {
		return "", apperr.Wrap(apperr.RateLimited, "account temporarily locked", errors.New(backoff.String()))
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return "", apperr.Wrap(apperr.StoreUnavailable, "lookup user", err)
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		if _, _, err := s.backoff.RecordFailure(ctx, username); err != nil {
			return "", apperr.Wrap(apperr.StoreUnavailable, "record login failure", err)
		}
		return "", apperr.New(apperr.Unauthorized, "invalid credentials")
	}

	if err := s.backoff.RecordSuccess(ctx, username); err != nil {
		return "", apperr.Wrap(apperr.StoreUnavailable, "clear login backoff", err)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", apperr.Wrap(apperr.StoreUnavailable, "sign token", err)
	}
	return signed, nil
}

// VerifyToken validates a bearer token and returns its claims.
func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil || !parsed.Valid {
		return nil, apperr.New(apperr.Unauthorized, "invalid or expired token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, apperr.New(apperr.Unauthorized, "invalid token claims")
	}
	return claims, nil
}

// HashPassword is used by account provisioning (out of core scope, exposed
// for tooling/tests).
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
