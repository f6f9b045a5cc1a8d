package v1

import (
	"context"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/duynhne/session-service/internal/core/cipher"
	"github.com/duynhne/session-service/internal/core/domain"
	"github.com/duynhne/session-service/middleware"
)

const (
	minPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes = 72
)

// AuthService implements the login, registration, refresh and logout flows
// on top of the SessionManager. It depends on repository interfaces
// (injected via constructor) and MUST NOT access the database directly.
type AuthService struct {
	users        domain.UserRepository
	sessions     *SessionManager
	cipher       *cipher.Cipher
	passwordCost int
	dummyHash    []byte
}

// AuthOption customizes an AuthService.
type AuthOption func(*AuthService)

// WithPasswordCost sets the bcrypt cost used for new password hashes.
func WithPasswordCost(cost int) AuthOption {
	return func(s *AuthService) { s.passwordCost = cost }
}

// NewAuthService creates a new AuthService with the given dependencies.
func NewAuthService(users domain.UserRepository, sessions *SessionManager, c *cipher.Cipher, opts ...AuthOption) *AuthService {
	s := &AuthService{
		users:        users,
		sessions:     sessions,
		cipher:       c,
		passwordCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.passwordCost < bcrypt.MinCost || s.passwordCost > bcrypt.MaxCost {
		log.Warn().Int("cost", s.passwordCost).Msg("bcrypt cost out of range, using default")
		s.passwordCost = bcrypt.DefaultCost
	}

	// Compared against when the email is unknown so both paths cost one bcrypt.
	hash, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.passwordCost)
	if err != nil {
		log.Error().Err(err).Msg("Failed to prepare dummy password hash")
	}
	s.dummyHash = hash
	return s
}

// Sessions exposes the underlying SessionManager (used by the gatekeeper).
func (s *AuthService) Sessions() *SessionManager {
	return s.sessions
}

// EncryptionKey starts a password key exchange.
func (s *AuthService) EncryptionKey(ctx context.Context) (*domain.EncryptionKey, error) {
	return s.sessions.GenerateEncryptionKey(ctx)
}

// decryptPassword resolves the ephemeral key and decrypts the payload.
func (s *AuthService) decryptPassword(ctx context.Context, keyID, payload string) (string, error) {
	key, found, err := s.sessions.GetEncryptionKey(ctx, keyID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrEncryptionKeyExpired
	}

	password, err := s.cipher.Decrypt(payload, key)
	if err != nil {
		return "", ErrCredentialProcessing
	}
	return password, nil
}

// Login handles user login business logic.
func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.login", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	password, err := s.decryptPassword(ctx, req.KeyID, req.Password)
	if err != nil {
		span.SetAttributes(attribute.Bool("auth.success", false))
		return nil, fmt.Errorf("login: %w", err)
	}

	row, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query user by email: %w", err)
	}
	if row == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		span.SetAttributes(attribute.Bool("auth.success", false))
		span.AddEvent("authentication.failed")
		return nil, fmt.Errorf("authenticate user: %w", ErrUserNotFound)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)); err != nil {
		span.SetAttributes(attribute.Bool("auth.success", false))
		span.AddEvent("authentication.failed")
		return nil, fmt.Errorf("authenticate user %d: %w", row.ID, ErrInvalidCredentials)
	}

	// Best-effort, don't fail login.
	if updateErr := s.users.UpdateLastLogin(ctx, row.ID); updateErr != nil {
		span.RecordError(fmt.Errorf("update last_login: %w", updateErr))
	}

	userID := strconv.Itoa(row.ID)
	pair, err := s.sessions.IssuePair(ctx, userID, row.Email)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("issue session: %w", err)
	}

	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.Bool("auth.success", true),
	)
	span.AddEvent("user.authenticated")

	return &domain.AuthResponse{
		User: domain.User{
			ID:       userID,
			Username: row.Username,
			Email:    row.Email,
		},
		TokenPair: *pair,
	}, nil
}

// Register handles user registration business logic.
func (s *AuthService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.register", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("username", req.Username),
	))
	defer span.End()

	password, err := s.decryptPassword(ctx, req.KeyID, req.Password)
	if err != nil {
		span.SetAttributes(attribute.Bool("registration.success", false))
		return nil, fmt.Errorf("register: %w", err)
	}
	if utf8.RuneCountInString(password) < minPasswordLength || len(password) > maxPasswordBytes {
		span.SetAttributes(attribute.Bool("registration.success", false))
		return nil, fmt.Errorf("register user %q: %w", req.Username, ErrWeakPassword)
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, req.Username, req.Email)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if exists {
		span.SetAttributes(attribute.Bool("registration.success", false))
		return nil, fmt.Errorf("register user %q: %w", req.Username, ErrUserExists)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), s.passwordCost)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.users.Create(ctx, req.Username, req.Email, string(passwordHash))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("insert user: %w", err)
	}

	userID := strconv.Itoa(id)
	pair, err := s.sessions.IssuePair(ctx, userID, req.Email)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("issue session: %w", err)
	}

	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.Bool("registration.success", true),
	)
	span.AddEvent("user.registered")

	return &domain.AuthResponse{
		User: domain.User{
			ID:       userID,
			Username: req.Username,
			Email:    req.Email,
		},
		TokenPair: *pair,
	}, nil
}

// Refresh rotates a refresh token into a new token pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	pair, err := s.sessions.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	if pair == nil {
		return nil, fmt.Errorf("refresh session: %w", ErrInvalidSession)
	}
	return pair, nil
}

// Logout revokes both tokens of the authenticated user.
func (s *AuthService) Logout(ctx context.Context, id domain.Identity) error {
	return s.sessions.Logout(ctx, id.UserID)
}

// Me returns the profile of the authenticated user.
func (s *AuthService) Me(ctx context.Context, id domain.Identity) (*domain.User, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.me", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("user.id", id.UserID),
	))
	defer span.End()

	numericID, err := strconv.Atoi(id.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user id %q: %w", id.UserID, ErrUserNotFound)
	}

	row, err := s.users.GetByID(ctx, numericID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query user: %w", err)
	}
	if row == nil {
		return nil, fmt.Errorf("lookup user %q: %w", id.UserID, ErrUserNotFound)
	}

	return &domain.User{
		ID:       id.UserID,
		Username: row.Username,
		Email:    row.Email,
	}, nil
}
