package app

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"gopherchat/internal/logger"
	"gopherchat/internal/model"
)

const minPasswordLength = 8

type UserService struct {
	users UserStore
	log   *zap.SugaredLogger
	now   func() time.Time
}

type RegisterInput struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

// Actor is the authenticated caller of a user mutation.
type Actor struct {
	ID    string
	Admin bool
}

type UpdateUserInput struct {
	Name     *string
	Email    *string
	Password *string
	Admin    *bool
}

func NewUserService(users UserStore, log *zap.SugaredLogger) *UserService {
	if log == nil {
		log = logger.Nop()
	}
	return &UserService{
		users: users,
		log:   log.With("component", "users"),
		now:   time.Now,
	}
}

func (s *UserService) Register(ctx context.Context, input RegisterInput) (*model.User, error) {
	name := strings.TrimSpace(input.Name)
	email := normalizeEmail(input.Email)
	if name == "" || email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidInput
	}
	if utf8.RuneCountInString(input.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if input.Password != input.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}

	taken, err := s.users.EmailTaken(ctx, email, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailExists
	}

	hash, err := hashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log.Infow("user registered", "user_id", user.ID)
	return user, nil
}

func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	return s.users.ListActive(ctx)
}

// Update applies the allow-listed fields. Users may edit themselves; admins may
// edit anyone, and only admins may change the admin flag. A password or admin
// change revokes the stored refresh token so older sessions cannot refresh.
func (s *UserService) Update(ctx context.Context, actor Actor, id string, input UpdateUserInput) (*model.User, error) {
	if err := authorizeUserMutation(actor, id); err != nil {
		return nil, err
	}
	if input.Admin != nil && !actor.Admin {
		return nil, ErrForbidden
	}

	user, err := s.activeUser(ctx, id)
	if err != nil {
		return nil, err
	}

	var update model.UserUpdate
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, ErrInvalidInput
		}
		update.Name = &name
	}
	if input.Email != nil {
		email := normalizeEmail(*input.Email)
		if email == "" || !strings.Contains(email, "@") {
			return nil, ErrInvalidInput
		}
		if email != user.Email {
			taken, err := s.users.EmailTaken(ctx, email, id)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, ErrEmailExists
			}
		}
		update.Email = &email
	}
	if input.Password != nil {
		if utf8.RuneCountInString(*input.Password) < minPasswordLength {
			return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
		}
		hash, err := hashPassword(*input.Password)
		if err != nil {
			return nil, err
		}
		update.PasswordHash = &hash
	}
	update.Admin = input.Admin
	if update.Empty() {
		return nil, ErrInvalidInput
	}

	if err := s.users.Update(ctx, id, update, s.now()); err != nil {
		return nil, err
	}
	if update.PasswordHash != nil || (update.Admin != nil && *update.Admin != user.Admin) {
		if err := s.users.SetRefreshToken(ctx, id, nil); err != nil {
			return nil, err
		}
	}
	s.log.Infow("user updated", "user_id", id, "actor_id", actor.ID)
	return s.activeUser(ctx, id)
}

// Delete soft-deletes the user and revokes its refresh token. Chats and messages are kept.
func (s *UserService) Delete(ctx context.Context, actor Actor, id string) error {
	if err := authorizeUserMutation(actor, id); err != nil {
		return err
	}
	if _, err := s.activeUser(ctx, id); err != nil {
		return err
	}
	if err := s.users.SoftDelete(ctx, id, s.now()); err != nil {
		return err
	}
	if err := s.users.SetRefreshToken(ctx, id, nil); err != nil {
		return err
	}
	s.log.Infow("user deleted", "user_id", id, "actor_id", actor.ID)
	return nil
}

func (s *UserService) activeUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Deleted {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func authorizeUserMutation(actor Actor, id string) error {
	if actor.ID == "" {
		return ErrUnauthorized
	}
	if id == "" {
		return ErrInvalidInput
	}
	if actor.ID != id && !actor.Admin {
		return ErrForbidden
	}
	return nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password failed: %w", err)
	}
	return string(hash), nil
}
