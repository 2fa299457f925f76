// Package service contains application services for authentication and accounts.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	pkgcrypto "github.com/Lucius-40/lanshop/internal/crypto"
	"github.com/Lucius-40/lanshop/internal/errs"
	"github.com/Lucius-40/lanshop/internal/limiter"
	"github.com/Lucius-40/lanshop/internal/model"
	"github.com/Lucius-40/lanshop/internal/repository"
	"github.com/Lucius-40/lanshop/internal/session"
)

// AuthService defines authentication and account operations.
type AuthService interface {
	// Register creates a new user with a hashed password.
	Register(ctx context.Context, reg NewAccount) error
	// LoginWithIP applies rate-limiting, authenticates and opens a session.
	LoginWithIP(ctx context.Context, username, password, ip string) (*model.Session, *model.User, error)
	// Logout evicts the session for the token.
	Logout(token string)
	// UserData returns the profile bound to a live session token.
	UserData(token string) (*model.User, error)
}

// NewAccount carries registration input.
type NewAccount struct {
	Username string
	Password string
	Email    string
	FullName string
	Address  string
	Phone    string
}

type AuthServiceImpl struct {
	users    repository.UserRepository
	sessions *session.Registry
	lim      limiter.Limiter
	log      *zap.Logger
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, sessions *session.Registry, lim limiter.Limiter, log *zap.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{users: users, sessions: sessions, lim: lim, log: log}
}

// Register creates a new user record. Duplicate username/email checks live in
// the store; missing optional profile fields default to "N/A".
func (s *AuthServiceImpl) Register(ctx context.Context, reg NewAccount) error {
	if reg.Username == "" || reg.Password == "" {
		return errors.New("empty username/password")
	}
	if reg.FullName == "" {
		reg.FullName = "N/A"
	}
	if reg.Phone == "" {
		reg.Phone = "N/A"
	}

	u := &model.User{
		Username:     reg.Username,
		PasswordHash: pkgcrypto.HashPassword(reg.Password),
		Email:        reg.Email,
		FullName:     reg.FullName,
		Address:      reg.Address,
		Phone:        reg.Phone,
		RegisteredAt: time.Now(),
		Active:       true,
	}
	if err := s.users.Create(u); err != nil {
		return fmt.Errorf("register %s: %w", reg.Username, err)
	}
	return nil
}

// LoginWithIP authenticates with rate limiting by (username, ip) and opens a
// session on success.
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, username, password, ip string) (*model.Session, *model.User, error) {
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, username, ipHash)
	if err != nil {
		return nil, nil, err
	}
	if !allowed {
		return nil, nil, errs.ErrRateLimited
	}

	u, err := s.users.Get(username)
	if err != nil || !u.Active || !pkgcrypto.VerifyPassword(password, u.PasswordHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, username, ipHash); ferr == nil && blocked {
			return nil, nil, errs.ErrRateLimited
		}
		// hide whether the user exists or is inactive
		return nil, nil, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, username, ipHash)

	sess, err := s.sessions.Create(u.Username)
	if err != nil {
		return nil, nil, fmt.Errorf("create session: %w", err)
	}
	s.log.Info("user logged in", zap.String("username", u.Username))
	return sess, u, nil
}

// Logout evicts the session for the token. Unknown tokens are a no-op.
func (s *AuthServiceImpl) Logout(token string) {
	s.sessions.Remove(token)
}

// UserData validates the token and returns the bound profile.
func (s *AuthServiceImpl) UserData(token string) (*model.User, error) {
	sess, err := s.sessions.Get(token)
	if err != nil {
		return nil, err
	}
	u, err := s.users.Get(sess.Username)
	if err != nil {
		return nil, err
	}
	return u, nil
}
