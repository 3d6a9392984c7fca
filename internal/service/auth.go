package service

// AUTHENTICATION:
// AuthService sits between the HTTP handlers and the repository/auth utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
//
// Registration, password login and GitHub sign-in all end in an issued JWT.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sakif/blog-api/internal/apperror"
	"github.com/sakif/blog-api/internal/auth"
	"github.com/sakif/blog-api/internal/model"
	"github.com/sakif/blog-api/internal/repository"
)

// BadCredentialsMessage is returned for every failed password login. Unknown
// email and wrong password look the same to the client.
const BadCredentialsMessage = "invalid login or password"

// AuthService handles the authentication business logic.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger

	// dummyHash is compared against when the email is unknown, so that path
	// costs one bcrypt comparison just like a wrong password does.
	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user record and the issued JWT so the handler can
// respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// RegisterInput is the raw registration request.
type RegisterInput struct {
	Email     string
	Password  string
	FullName  string
	AvatarURL string
}

// Register validates the input, stores the user with a bcrypt hash and issues a token.
//
// A taken email is apperror.ErrConflict (the store's unique index decides,
// there is no check-then-insert race).
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := normalizeEmail(in.Email)
	fullName := strings.TrimSpace(in.FullName)
	avatarURL := strings.TrimSpace(in.AvatarURL)

	var errs fieldErrors
	checkEmail(&errs, email)
	checkPassword(&errs, in.Password)
	checkMinLength(&errs, "fullName", fullName, MinFullNameLength)
	if avatarURL != "" {
		checkAbsoluteURL(&errs, "avatarURL", avatarURL)
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
		AvatarURL:    avatarURL,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, &apperror.AppError{
				Err:     apperror.ErrConflict,
				Message: "a user with this email already exists",
				Field:   "email",
			}
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))

	return s.issue(user)
}

// Login verifies email and password and issues a token.
//
// Both "no such email" and "wrong password" return the same NotFound error
// (404, BadCredentialsMessage) and both cost one bcrypt comparison.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)

	var errs fieldErrors
	checkEmail(&errs, email)
	checkPassword(&errs, password)
	if err := errs.err(); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			_ = s.passwords.Verify(s.dummy(), password)
			return nil, apperror.NotFoundMessage(BadCredentialsMessage)
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.logger.Debug("password login rejected", slog.String("userID", user.ID))
		return nil, apperror.NotFoundMessage(BadCredentialsMessage)
	}

	return s.issue(user)
}

// Me returns the profile of the authenticated user.
// A token whose user no longer exists yields apperror.ErrNotFound.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}
	return user, nil
}

// ValidateToken validates a JWT string and returns the userID it encodes.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}

// LoginWithGitHub signs in the account matching the GitHub profile, creating
// it on first sign-in.
//
// Accounts are matched by email. Users who hide their email on GitHub get
// GitHub's stable noreply address instead. Created accounts have no password
// hash, so password login for them always fails.
func (s *AuthService) LoginWithGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil {
		return nil, errors.New("service/auth: GitHub user must not be nil")
	}

	email := normalizeEmail(gh.Email)
	if email == "" {
		email = fmt.Sprintf("%d+%s@users.noreply.github.com", gh.ID, strings.ToLower(gh.Login))
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, apperror.ErrNotFound):
		user, err = s.createGitHubUser(ctx, gh, email)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("service/auth: looking up GitHub user: %w", err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", gh.Login),
	)

	return s.issue(user)
}

func (s *AuthService) createGitHubUser(ctx context.Context, gh *auth.GitHubUser, email string) (*model.User, error) {
	name := strings.TrimSpace(gh.Name)
	if name == "" {
		name = gh.Login
	}

	user := &model.User{
		Email:     email,
		FullName:  name,
		AvatarURL: gh.AvatarURL,
	}
	err := s.users.CreateUser(ctx, user)
	if errors.Is(err, apperror.ErrConflict) {
		// Two callbacks for the same new account raced; the other one won.
		return s.users.GetUserByEmail(ctx, email)
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: creating GitHub user: %w", err)
	}

	s.logger.Info("user registered via GitHub", slog.String("userID", user.ID))
	return user, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.passwords.Hash("not-a-real-password")
		if err != nil {
			s.logger.Error("hashing dummy password", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}
