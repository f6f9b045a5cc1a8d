package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/duynhne/session-service/internal/core/domain"
	pkgzerolog "github.com/duynhne/session-service/pkg/logger/zerolog"
)

var (
	// ErrMissingToken indicates no usable "Bearer <token>" authorization header.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken indicates the presented token is not a live session.
	ErrInvalidToken = errors.New("invalid or expired token")
)

const bearerPrefix = "Bearer "

// SessionValidator verifies a token against the session store.
// Validate returns (nil, nil) for any token that is not a live session.
type SessionValidator interface {
	Validate(ctx context.Context, token string, tokenType domain.TokenType) (*domain.Identity, error)
}

type identityContextKey struct{}

// IdentityFromContext returns the identity attached by the gatekeeper.
func IdentityFromContext(ctx context.Context) (*domain.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*domain.Identity)
	return id, ok && id != nil
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *domain.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// Gatekeeper authorizes every request that does not target a public route.
// It has no cache: each protected request costs one store lookup, so a
// logout is visible on the very next request.
type Gatekeeper struct {
	sessions SessionValidator
	public   map[string]struct{}
}

// NewGatekeeper creates a Gatekeeper with no public routes.
func NewGatekeeper(sessions SessionValidator) *Gatekeeper {
	return &Gatekeeper{
		sessions: sessions,
		public:   make(map[string]struct{}),
	}
}

// Public marks a route template (as registered with gin) as public.
// Call during setup only.
func (g *Gatekeeper) Public(method, path string) *Gatekeeper {
	g.public[routeKey(method, path)] = struct{}{}
	return g
}

// IsPublic reports whether method + route template was marked public.
func (g *Gatekeeper) IsPublic(method, path string) bool {
	if path == "" {
		return false
	}
	_, ok := g.public[routeKey(method, path)]
	return ok
}

func routeKey(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrMissingToken
	}
	tok := header[len(bearerPrefix):]
	if tok == "" || strings.ContainsAny(tok, " \t") {
		return "", ErrMissingToken
	}
	return tok, nil
}

// Middleware returns the gin handler enforcing authentication.
func (g *Gatekeeper) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.IsPublic(c.Request.Method, c.FullPath()) {
			c.Next()
			return
		}

		ctx, span := StartSpan(c.Request.Context(), "auth.gatekeeper")
		defer span.End()
		logger := pkgzerolog.FromContext(ctx)

		tok, err := BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			span.SetAttributes(attribute.Bool("auth.present", false))
			recordGatekeeperRejection("missing_token")
			abortUnauthorized(c, err)
			return
		}

		id, err := g.sessions.Validate(ctx, tok, domain.TokenTypeAccess)
		if err != nil {
			// Store faults fail closed.
			span.RecordError(err)
			span.SetStatus(codes.Error, "session store unavailable")
			logger.Error().Err(err).Msg("Session validation failed")
			recordGatekeeperRejection("store_error")
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Authentication temporarily unavailable"})
			return
		}
		if id == nil {
			span.SetAttributes(attribute.Bool("auth.valid", false))
			recordGatekeeperRejection("invalid_token")
			abortUnauthorized(c, ErrInvalidToken)
			return
		}

		span.SetAttributes(
			attribute.Bool("auth.valid", true),
			attribute.String("user.id", id.UserID),
		)

		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// abortUnauthorized sends the uniform 401. The code field only tells
// clients whether to prompt a login or a re-login.
func abortUnauthorized(c *gin.Context, err error) {
	code := "invalid_token"
	if errors.Is(err, ErrMissingToken) {
		code = "missing_token"
	}
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": "Unauthorized",
		"code":  code,
	})
}
