package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/academyhub/academyhub/internal/authz"
	"github.com/academyhub/academyhub/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *authz.TokenManager
	now    func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *authz.TokenManager) *Service {
	return &Service{repo: repo, tokens: tokens, now: time.Now}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues a signed token backed by a login session.
func (s *Service) Login(ctx context.Context, email, password, ip, ua string) (string, authz.Claims, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return "", authz.Claims{}, err
	}
	token, claims, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", authz.Claims{}, err
	}
	err = s.repo.CreateSession(ctx, LoginSession{
		ID:        claims.SessionID,
		UserID:    user.ID,
		CreatedAt: s.now().UTC(),
		ExpiresAt: claims.ExpiresAt,
		IP:        ip,
		UserAgent: ua,
	})
	if err != nil {
		return "", authz.Claims{}, fmt.Errorf("register session: %w", err)
	}
	return token, claims, nil
}

// SessionActive reports whether the login session has not been revoked.
func (s *Service) SessionActive(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	return s.repo.SessionExists(ctx, sessionID)
}

// RemoveSession revokes a login session.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.repo.DeleteSession(ctx, id)
}

var _ authz.SessionValidator = (*Service)(nil)
