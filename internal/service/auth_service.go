package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"notekeeper/internal/auth"
	"notekeeper/internal/domain"
	"notekeeper/internal/repository"
)

const (
	minNameLength     = 2
	minPasswordLength = 6
	// bcrypt ignores everything past 72 bytes, x/crypto refuses to hash it
	maxPasswordBytes  = 72
)

// \p{Z} covers Unicode separators such as U+00A0 that \s (ASCII only) misses
var emailPattern = regexp.MustCompile(`^[^@\s\p{Z}]+@[^@\s\p{Z}]+\.[^@\s\p{Z}]+$`)

// Tokens issues and verifies bearer tokens.
type Tokens interface {
	Issue(user *domain.User) (string, error)
	Verify(token string) (auth.Identity, error)
}

// RegisterInput is the raw registration form.
type RegisterInput struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

// AuthResult is returned by successful registration and login.
type AuthResult struct {
	User  *domain.User
	Token string
}

// AuthService describes account registration, login and token verification.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Authenticate(token string) (auth.Identity, error)
	CurrentUser(ctx context.Context, identity auth.Identity) (*domain.User, error)
}

type authService struct {
	users     repository.UserRepository
	tokens    Tokens
	cost      int
	dummyHash []byte
}

// NewAuthService builds the service. cost is the bcrypt work factor; values
// outside bcrypt's range fall back to bcrypt.DefaultCost.
func NewAuthService(users repository.UserRepository, tokens Tokens, cost int) (AuthService, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	// compared against on unknown emails so both login failures cost the same
	dummy, err := bcrypt.GenerateFromPassword([]byte("notekeeper-login-timing"), cost)
	if err != nil {
		return nil, fmt.Errorf("prepare login hash: %w", err)
	}
	return &authService{
		users:     users,
		tokens:    tokens,
		cost:      cost,
		dummyHash: dummy,
	}, nil
}

func (s *authService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	name := strings.TrimSpace(in.Name)
	email := domain.NormalizeEmail(in.Email)

	if utf8.RuneCountInString(name) < minNameLength {
		return nil, invalid("name", "name must be at least 2 characters")
	}
	if !emailPattern.MatchString(email) {
		return nil, invalid("email", "invalid email format")
	}
	if utf8.RuneCountInString(in.Password) < minPasswordLength {
		return nil, invalid("password", "password must be at least 6 characters")
	}
	if len(in.Password) > maxPasswordBytes {
		return nil, invalid("password", "password must be at most 72 bytes")
	}
	if in.Password != in.ConfirmPassword {
		return nil, invalid("confirmPassword", "passwords do not match")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
	}
	if _, err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, storageError("register user", err)
	}

	return s.issue(user)
}

func (s *authService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, invalid("email", "email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, storageError("find user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issue(user)
}

func (s *authService) Authenticate(token string) (auth.Identity, error) {
	return s.tokens.Verify(token)
}

func (s *authService) CurrentUser(ctx context.Context, identity auth.Identity) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError("get user", err)
	}
	return sanitizeUser(user), nil
}

func (s *authService) issue(user *domain.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResult{User: sanitizeUser(user), Token: token}, nil
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	return &domain.User{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}
}
