package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/example/community-events/internal/persistence"
)

// Username length bounds, in runes.
const (
	MinUsernameLength = 2
	MaxUsernameLength = 30
)

// UserRepository captures the persistence operations needed by the user service.
type UserRepository interface {
	ListUsers(ctx context.Context) ([]persistence.User, error)
	CreateUser(ctx context.Context, user persistence.User) error
}

// UserService registers the display names suggesters pick.
type UserService struct {
	users       UserRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewUserService wires dependencies for the user service.
func NewUserService(users UserRepository, idGenerator func() string, now func() time.Time) *UserService {
	return NewUserServiceWithLogger(users, idGenerator, now, nil)
}

// NewUserServiceWithLogger wires dependencies for the user service with a specified logger.
func NewUserServiceWithLogger(users UserRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *UserService {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &UserService{users: users, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

// RegisterUser validates the username and stores it. Names are unique
// regardless of case.
func (s *UserService) RegisterUser(ctx context.Context, input UserInput) (user persistence.User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}

	username := strings.TrimSpace(input.Username)
	logger := serviceLogger(ctx, s.logger, "UserService", "RegisterUser", "username", username)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to register user", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID).InfoContext(ctx, "user registered")
	}()

	if vErr := validateUsername(username); vErr.HasErrors() {
		err = vErr
		return
	}

	user = persistence.User{
		ID:        s.idGenerator(),
		Username:  username,
		CreatedAt: s.now().UTC(),
	}
	if s.users == nil {
		return
	}

	if err = s.users.CreateUser(ctx, user); err != nil {
		err = mapRepoError(err)
		return
	}
	return
}

// ListUsers returns all registered users in registration order.
func (s *UserService) ListUsers(ctx context.Context) ([]persistence.User, error) {
	if s == nil {
		return nil, fmt.Errorf("UserService is nil")
	}
	if s.users == nil {
		return []persistence.User{}, nil
	}

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, mapRepoError(err)
	}
	out := make([]persistence.User, len(users))
	copy(out, users)
	return out, nil
}

func validateUsername(username string) *ValidationError {
	vErr := &ValidationError{}
	switch n := utf8.RuneCountInString(username); {
	case n == 0:
		vErr.add("username", "username is required")
	case n < MinUsernameLength || n > MaxUsernameLength:
		vErr.add("username", fmt.Sprintf("username must be %d to %d characters", MinUsernameLength, MaxUsernameLength))
	}
	return vErr
}
