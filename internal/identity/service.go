// Package identity resolves who a request acts as: bcrypt-verified sign-in,
// registration, and the signed session cookie around them.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"leafwiki/api/internal/auth"
	"leafwiki/api/internal/store"
	"leafwiki/api/internal/util"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

const sessionTTL = 30 * 24 * time.Hour

// userStore is the slice of the data store identity needs.
type userStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	InsertUser(ctx context.Context, user store.User) (store.User, error)
}

type Service struct {
	store  userStore
	secret []byte
}

func NewService(store userStore, secret []byte) *Service {
	return &Service{store: store, secret: secret}
}

// SignIn verifies credentials and returns a signed session token.
func (s *Service) SignIn(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.issue(user)
}

// SignUp registers a principal and returns a signed session token.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return "", fmt.Errorf("a valid email is required")
	}
	if len(password) < 8 {
		return "", fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.InsertUser(ctx, store.User{
		ID:           util.NewID("usr"),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
	})
	if err != nil {
		return "", err
	}
	return s.issue(user)
}

// FromToken resolves a session token back to claims.
func (s *Service) FromToken(token string) (auth.Claims, error) {
	return auth.ParseToken(s.secret, token)
}

func (s *Service) issue(user store.User) (string, error) {
	return auth.IssueToken(s.secret, auth.Claims{
		Email: user.Email,
		Name:  user.DisplayName,
		Admin: user.IsAdmin,
		Exp:   time.Now().Add(sessionTTL).Unix(),
	})
}
