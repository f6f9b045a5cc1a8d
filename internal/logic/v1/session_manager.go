package v1

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/session-service/internal/core/cipher"
	"github.com/duynhne/session-service/internal/core/domain"
	"github.com/duynhne/session-service/internal/core/token"
	"github.com/duynhne/session-service/middleware"
	pkgzerolog "github.com/duynhne/session-service/pkg/logger/zerolog"
)

// SessionConfig is the immutable configuration of a SessionManager.
type SessionConfig struct {
	Secret           []byte
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	EncryptionKeyTTL time.Duration
}

func (c SessionConfig) validate() error {
	switch {
	case len(c.Secret) == 0:
		return errors.New("session secret is empty")
	case c.AccessTokenTTL <= 0, c.RefreshTokenTTL <= 0, c.EncryptionKeyTTL <= 0:
		return errors.New("session TTLs must be positive")
	}
	return nil
}

func (c SessionConfig) ttl(t domain.TokenType) time.Duration {
	if t == domain.TokenTypeRefresh {
		return c.RefreshTokenTTL
	}
	return c.AccessTokenTTL
}

// ErrRotationConflict is returned when a refresh would hand back the
// presented refresh token unchanged.
var ErrRotationConflict = errors.New("rotated refresh token equals presented token")

// SessionManager issues, verifies, rotates and revokes session tokens and
// hands out ephemeral password encryption keys.
//
// It holds no mutable state of its own: the key-value store is the only
// source of truth, and a token is live exactly while the store holds a
// byte-identical copy under its user's key. One access and one refresh token
// are live per user; issuing another overwrites the previous one.
//
// Issued-at timestamps are strictly increasing per manager, so two tokens
// minted in the same millisecond still differ.
type SessionManager struct {
	store domain.KeyValueStore
	cfg   SessionConfig
	now   func() time.Time

	lastIssued atomic.Int64
}

// SessionOption customizes a SessionManager.
type SessionOption func(*SessionManager)

// WithClock overrides the clock used for issued-at timestamps.
func WithClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) { m.now = now }
}

// NewSessionManager creates a SessionManager. The secret is copied.
func NewSessionManager(store domain.KeyValueStore, cfg SessionConfig, opts ...SessionOption) (*SessionManager, error) {
	if store == nil {
		return nil, errors.New("session store is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Secret = append([]byte(nil), cfg.Secret...)

	m := &SessionManager{store: store, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// issuedAt returns max(now, last+1) in milliseconds.
func (m *SessionManager) issuedAt() int64 {
	now := m.now().UnixMilli()
	for {
		last := m.lastIssued.Load()
		next := max(now, last+1)
		if m.lastIssued.CompareAndSwap(last, next) {
			return next
		}
	}
}

func (m *SessionManager) mint(userID, email string, t domain.TokenType) (string, error) {
	return token.Issue(domain.SessionClaims{
		UserID:    userID,
		Email:     email,
		Type:      t,
		Timestamp: m.issuedAt(),
	}, m.cfg.Secret)
}

// Issue mints a token of class t for the user and stores it, replacing any
// live token of the same class.
func (m *SessionManager) Issue(ctx context.Context, userID, email string, t domain.TokenType) (string, error) {
	ctx, span := middleware.StartSpan(ctx, "session.issue", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("token.type", string(t)),
	))
	defer span.End()

	if userID == "" {
		return "", errors.New("issue token: empty user id")
	}
	if !t.Valid() {
		return "", fmt.Errorf("issue token: unknown type %q", t)
	}

	tok, err := m.mint(userID, email, t)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("mint %s token: %w", t, err)
	}
	if err := m.store.SetWithTTL(ctx, domain.SessionKey(t, userID), tok, m.cfg.ttl(t)); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("store %s token for user %q: %w", t, userID, err)
	}

	middleware.RecordTokenIssued(string(t))
	return tok, nil
}

// IssuePair mints a fresh access and refresh token and stores both in one
// all-or-nothing write.
func (m *SessionManager) IssuePair(ctx context.Context, userID, email string) (*domain.TokenPair, error) {
	ctx, span := middleware.StartSpan(ctx, "session.issue_pair", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	if userID == "" {
		return nil, errors.New("issue token pair: empty user id")
	}

	access, err := m.mint(userID, email, domain.TokenTypeAccess)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}
	refresh, err := m.mint(userID, email, domain.TokenTypeRefresh)
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}

	err = m.store.SetManyWithTTL(ctx,
		domain.StoreEntry{Key: domain.SessionKey(domain.TokenTypeAccess, userID), Value: access, TTL: m.cfg.AccessTokenTTL},
		domain.StoreEntry{Key: domain.SessionKey(domain.TokenTypeRefresh, userID), Value: refresh, TTL: m.cfg.RefreshTokenTTL},
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store token pair for user %q: %w", userID, err)
	}

	middleware.RecordTokenIssued(string(domain.TokenTypeAccess))
	middleware.RecordTokenIssued(string(domain.TokenTypeRefresh))

	return &domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresIn:  int64(m.cfg.AccessTokenTTL / time.Second),
		RefreshExpiresIn: int64(m.cfg.RefreshTokenTTL / time.Second),
	}, nil
}

// Validate returns the identity behind tok when it is a correctly signed
// token of class t and is the copy currently stored for its user.
//
// Every "not a live session" outcome returns (nil, nil): malformed, forged,
// wrong class, never issued, expired, revoked or superseded. Only store
// faults return an error, and callers must then treat the request as
// unauthenticated.
func (m *SessionManager) Validate(ctx context.Context, tok string, t domain.TokenType) (*domain.Identity, error) {
	ctx, span := middleware.StartSpan(ctx, "session.validate", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("token.type", string(t)),
	))
	defer span.End()

	logger := pkgzerolog.FromContext(ctx)

	claims, err := token.ParseAndVerify(tok, m.cfg.Secret, t)
	if err != nil {
		span.SetAttributes(attribute.Bool("session.valid", false))
		logger.Debug().Str("reason", err.Error()).Str("token_type", string(t)).Msg("Token rejected")
		middleware.RecordSessionValidation(string(t), middleware.ValidationInvalid)
		return nil, nil
	}

	stored, found, err := m.store.Get(ctx, domain.SessionKey(t, claims.UserID))
	if err != nil {
		span.RecordError(err)
		middleware.RecordSessionValidation(string(t), middleware.ValidationStoreFailed)
		return nil, fmt.Errorf("lookup %s session for user %q: %w", t, claims.UserID, err)
	}
	if !found || subtle.ConstantTimeCompare([]byte(stored), []byte(tok)) != 1 {
		span.SetAttributes(attribute.Bool("session.valid", false))
		logger.Debug().Str("user_id", claims.UserID).Str("token_type", string(t)).Msg("Token is not the live session")
		middleware.RecordSessionValidation(string(t), middleware.ValidationNotLive)
		return nil, nil
	}

	span.SetAttributes(
		attribute.Bool("session.valid", true),
		attribute.String("user.id", claims.UserID),
	)
	middleware.RecordSessionValidation(string(t), middleware.ValidationValid)

	return &domain.Identity{UserID: claims.UserID, Email: claims.Email}, nil
}

// Refresh rotates a live refresh token into a brand-new pair. The presented
// token stops validating because its stored copy is overwritten.
// Returns (nil, nil) when refreshToken is not a live refresh token.
//
// Concurrent refreshes with the same token may all pass validation; the
// pair written last is the one that stays live.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	ctx, span := middleware.StartSpan(ctx, "session.refresh", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	id, err := m.Validate(ctx, refreshToken, domain.TokenTypeRefresh)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if id == nil {
		span.SetAttributes(attribute.Bool("refresh.success", false))
		return nil, nil
	}

	pair, err := m.IssuePair(ctx, id.UserID, id.Email)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if pair.RefreshToken == refreshToken {
		span.RecordError(ErrRotationConflict)
		return nil, fmt.Errorf("refresh session for user %q: %w", id.UserID, ErrRotationConflict)
	}

	span.SetAttributes(attribute.Bool("refresh.success", true))
	pkgzerolog.FromContext(ctx).Info().Str("user_id", id.UserID).Msg("Session refreshed")
	return pair, nil
}

// Logout deletes both stored tokens of the user. It is idempotent.
func (m *SessionManager) Logout(ctx context.Context, userID string) error {
	ctx, span := middleware.StartSpan(ctx, "session.logout", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("user.id", userID),
	))
	defer span.End()

	err := m.store.Delete(ctx,
		domain.SessionKey(domain.TokenTypeAccess, userID),
		domain.SessionKey(domain.TokenTypeRefresh, userID),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete sessions for user %q: %w", userID, err)
	}
	return nil
}

// GenerateEncryptionKey mints an ephemeral key for one password exchange and
// stores it for the configured key TTL.
func (m *SessionManager) GenerateEncryptionKey(ctx context.Context) (*domain.EncryptionKey, error) {
	ctx, span := middleware.StartSpan(ctx, "session.generate_encryption_key", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	key, err := cipher.GenerateKey()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("generate encryption key: %w", err)
	}
	keyID := uuid.NewString()

	if err := m.store.SetWithTTL(ctx, domain.EncryptionKeyKey(keyID), key, m.cfg.EncryptionKeyTTL); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store encryption key: %w", err)
	}

	middleware.RecordEncryptionKeyIssued()
	return &domain.EncryptionKey{
		KeyID:     keyID,
		Key:       key,
		ExpiresIn: int64(m.cfg.EncryptionKeyTTL / time.Second),
	}, nil
}

// GetEncryptionKey returns the stored key for keyID.
// Returns ("", false, nil) when the key is unknown or expired. Reading does
// not consume the key; it stays usable until its TTL elapses.
func (m *SessionManager) GetEncryptionKey(ctx context.Context, keyID string) (string, bool, error) {
	ctx, span := middleware.StartSpan(ctx, "session.get_encryption_key", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	if _, err := uuid.Parse(keyID); err != nil {
		span.SetAttributes(attribute.Bool("key.found", false))
		return "", false, nil
	}

	key, found, err := m.store.Get(ctx, domain.EncryptionKeyKey(keyID))
	if err != nil {
		span.RecordError(err)
		return "", false, fmt.Errorf("lookup encryption key: %w", err)
	}
	span.SetAttributes(attribute.Bool("key.found", found))
	return key, found, nil
}
