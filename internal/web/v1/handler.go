package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/session-service/internal/core/domain"
	"github.com/duynhne/session-service/internal/core/repository"
	logicv1 "github.com/duynhne/session-service/internal/logic/v1"
	"github.com/duynhne/session-service/middleware"
	pkgzerolog "github.com/duynhne/session-service/pkg/logger/zerolog"
)

// Handler groups HTTP handlers for the auth API v1.
// Dependencies are injected via the constructor; there is no global state.
type Handler struct {
	auth *logicv1.AuthService
}

// NewHandler creates a new Handler with the given AuthService.
func NewHandler(auth *logicv1.AuthService) *Handler {
	return &Handler{auth: auth}
}

// RegisterRoutes registers all auth API v1 routes on the given router group
// and marks the ones that must work without a session as public.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, gk *middleware.Gatekeeper) {
	public := func(method, path string, handler gin.HandlerFunc) {
		rg.Handle(method, path, handler)
		gk.Public(method, joinPath(rg.BasePath(), path))
	}

	public(http.MethodGet, "/auth/encryption-key", h.EncryptionKey)
	public(http.MethodPost, "/auth/register", h.Register)
	public(http.MethodPost, "/auth/login", h.Login)
	public(http.MethodPost, "/auth/refresh", h.Refresh)

	rg.POST("/auth/logout", h.Logout)
	rg.GET("/auth/me", h.GetMe)
}

func joinPath(base, path string) string {
	if base == "/" {
		return path
	}
	return base + path
}

// startRequestSpan opens the web-layer span and makes the request context
// carry it.
func startRequestSpan(c *gin.Context) trace.Span {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	c.Request = c.Request.WithContext(ctx)
	return span
}

// EncryptionKey starts a password key exchange.
// GET /api/v1/auth/encryption-key
func (h *Handler) EncryptionKey(c *gin.Context) {
	span := startRequestSpan(c)
	defer span.End()
	ctx := c.Request.Context()

	key, err := h.auth.EncryptionKey(ctx)
	if err != nil {
		span.RecordError(err)
		pkgzerolog.FromContext(ctx).Error().Err(err).Msg("Encryption key generation failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, key)
}

// Login handles HTTP request for user login.
// POST /api/v1/auth/login
func (h *Handler) Login(c *gin.Context) {
	span := startRequestSpan(c)
	defer span.End()
	ctx := c.Request.Context()
	logger := pkgzerolog.FromContext(ctx)

	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		logger.Warn().Err(err).Msg("Invalid request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(attribute.Bool("request.valid", true))

	response, err := h.auth.Login(ctx, req)
	if err != nil {
		span.RecordError(err)
		logger.Warn().Err(err).Msg("Login failed")
		writeCredentialError(c, err)
		return
	}

	logger.Info().Str("user_id", response.User.ID).Msg("Login successful")
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, response)
}

// Register handles HTTP request for user registration.
// POST /api/v1/auth/register
func (h *Handler) Register(c *gin.Context) {
	span := startRequestSpan(c)
	defer span.End()
	ctx := c.Request.Context()
	logger := pkgzerolog.FromContext(ctx)

	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		logger.Warn().Err(err).Msg("Invalid request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(attribute.Bool("request.valid", true))

	response, err := h.auth.Register(ctx, req)
	if err != nil {
		span.RecordError(err)
		logger.Warn().
			Err(err).
			Str("username", req.Username).
			Msg("Registration failed")

		if errors.Is(err, logicv1.ErrUserExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "Username or email already exists"})
			return
		}
		writeCredentialError(c, err)
		return
	}

	logger.Info().Str("user_id", response.User.ID).Msg("Registration successful")
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusCreated, response)
}

// Refresh rotates a refresh token.
// POST /api/v1/auth/refresh
func (h *Handler) Refresh(c *gin.Context) {
	span := startRequestSpan(c)
	defer span.End()
	ctx := c.Request.Context()
	logger := pkgzerolog.FromContext(ctx)

	var req domain.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pair, err := h.auth.Refresh(ctx, req.RefreshToken)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, logicv1.ErrInvalidSession) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token", "code": "invalid_token"})
			return
		}
		logger.Error().Err(err).Msg("Refresh failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, pair)
}

// Logout revokes the caller's access and refresh tokens.
// POST /api/v1/auth/logout
// Authorization: Bearer <token>
func (h *Handler) Logout(c *gin.Context) {
	span := startRequestSpan(c)
	defer span.End()
	ctx := c.Request.Context()
	logger := pkgzerolog.FromContext(ctx)

	id, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := h.auth.Logout(ctx, *id); err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Str("user_id", id.UserID).Msg("Logout failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}

	logger.Info().Str("user_id", id.UserID).Msg("Logout successful")
	c.Status(http.StatusNoContent)
}

// GetMe returns the authenticated user.
// GET /api/v1/auth/me
// Authorization: Bearer <token>
func (h *Handler) GetMe(c *gin.Context) {
	span := startRequestSpan(c)
	defer span.End()
	ctx := c.Request.Context()
	logger := pkgzerolog.FromContext(ctx)

	id, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	user, err := h.auth.Me(ctx, *id)
	if err != nil {
		span.RecordError(err)
		logger.Warn().Err(err).Msg("User lookup failed")

		if errors.Is(err, logicv1.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "code": "invalid_token"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// writeCredentialError maps login/registration failures. Unknown users and
// wrong passwords share one response so account existence is not revealed.
// Session store faults fail closed with 503.
func writeCredentialError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, logicv1.ErrInvalidCredentials), errors.Is(err, logicv1.ErrUserNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
	case errors.Is(err, logicv1.ErrEncryptionKeyExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Encryption key expired", "code": "encryption_key_expired"})
	case errors.Is(err, logicv1.ErrCredentialProcessing):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Credential processing failed"})
	case errors.Is(err, logicv1.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be 8 to 72 bytes"})
	case errors.Is(err, repository.ErrStoreUnavailable):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
