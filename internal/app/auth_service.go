package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"gopherchat/internal/logger"
	"gopherchat/internal/model"
	"gopherchat/internal/pkg/jwtutil"
)

type AuthService struct {
	users         UserStore
	tokens        *jwtutil.Manager
	strictRefresh bool
	dummyHash     []byte
	log           *zap.SugaredLogger
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResult struct {
	User         *model.User
	AccessToken  string
	RefreshToken string
}

// NewAuthService wires login/logout/refresh. With strictRefresh a refresh token
// is only honored while it equals the one stored on the user.
func NewAuthService(users UserStore, tokens *jwtutil.Manager, strictRefresh bool, log *zap.SugaredLogger) *AuthService {
	if log == nil {
		log = logger.Nop()
	}
	// compared against when the email is unknown so both failure paths hash once
	dummy, _ := bcrypt.GenerateFromPassword([]byte("gopherchat-placeholder"), bcrypt.DefaultCost)
	return &AuthService{
		users:         users,
		tokens:        tokens,
		strictRefresh: strictRefresh,
		dummyHash:     dummy,
		log:           log.With("component", "auth"),
	}
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, ErrInvalidCredential
	}

	user, err := s.users.GetActiveByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(input.Password))
		return nil, ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredential
	}

	access, refresh, err := s.tokens.Issue(user.ID, user.Email, user.Admin)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetRefreshToken(ctx, user.ID, &refresh); err != nil {
		return nil, err
	}
	user.RefreshToken = &refresh

	s.log.Infow("user logged in", "user_id", user.ID)
	return &AuthResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUnauthorized
	}
	if err := s.users.SetRefreshToken(ctx, userID, nil); err != nil {
		return err
	}
	s.log.Infow("user logged out", "user_id", userID)
	return nil
}

// Refresh exchanges a refresh token for a new access token. The refresh token itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return "", err
	}
	if user == nil || user.Deleted {
		return "", ErrUnauthorized
	}
	if s.strictRefresh && (user.RefreshToken == nil || *user.RefreshToken != refreshToken) {
		return "", fmt.Errorf("%w: refresh token revoked", ErrUnauthorized)
	}

	return s.tokens.IssueAccess(user.ID, user.Email, user.Admin)
}

// Authenticate validates an access token for request middleware.
func (s *AuthService) Authenticate(accessToken string) (*jwtutil.Claims, error) {
	claims, err := s.tokens.ParseAccess(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return claims, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Deleted {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
