package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/session-service/internal/core/domain"
)

type fakeValidator struct {
	tokens map[string]domain.Identity
	err    error
	calls  int
	types  []domain.TokenType
}

func (f *fakeValidator) Validate(_ context.Context, tok string, t domain.TokenType) (*domain.Identity, error) {
	f.calls++
	f.types = append(f.types, t)
	if f.err != nil {
		return nil, f.err
	}
	id, ok := f.tokens[tok]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

func newGatekeeperRouter(v SessionValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	gk := NewGatekeeper(v).Public(http.MethodPost, "/login")
	r.Use(gk.Middleware())

	r.POST("/login", func(c *gin.Context) { c.String(http.StatusOK, "public") })
	r.GET("/private", func(c *gin.Context) {
		id, ok := IdentityFromContext(c.Request.Context())
		if !ok {
			c.String(http.StatusInternalServerError, "no identity")
			return
		}
		c.String(http.StatusOK, id.UserID+"|"+id.Email)
	})
	r.GET("/login", func(c *gin.Context) { c.String(http.StatusOK, "same path, other method") })
	return r
}

func do(r http.Handler, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGatekeeperPublicRouteSkipsInspection(t *testing.T) {
	v := &fakeValidator{}
	r := newGatekeeperRouter(v)

	w := do(r, http.MethodPost, "/login", "Bearer garbage")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "public", w.Body.String())
	assert.Zero(t, v.calls)
}

func TestGatekeeperPublicIsPerMethod(t *testing.T) {
	v := &fakeValidator{}
	r := newGatekeeperRouter(v)

	w := do(r, http.MethodGet, "/login", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGatekeeperMissingToken(t *testing.T) {
	v := &fakeValidator{}
	r := newGatekeeperRouter(v)

	for _, header := range []string{"", "Bearer", "Bearer ", "Basic dXNlcjpwYXNz", "bearer tok", "Bearer a b"} {
		w := do(r, http.MethodGet, "/private", header)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
		assert.JSONEq(t, `{"error":"Unauthorized","code":"missing_token"}`, w.Body.String())
		assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
	}
	assert.Zero(t, v.calls)
}

func TestGatekeeperInvalidToken(t *testing.T) {
	v := &fakeValidator{tokens: map[string]domain.Identity{}}
	r := newGatekeeperRouter(v)

	w := do(r, http.MethodGet, "/private", "Bearer not-live")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Unauthorized","code":"invalid_token"}`, w.Body.String())
}

func TestGatekeeperAttachesIdentity(t *testing.T) {
	v := &fakeValidator{tokens: map[string]domain.Identity{
		"tok": {UserID: "u1", Email: "a@x.com"},
	}}
	r := newGatekeeperRouter(v)

	w := do(r, http.MethodGet, "/private", "Bearer tok")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1|a@x.com", w.Body.String())
	assert.Equal(t, []domain.TokenType{domain.TokenTypeAccess}, v.types)
}

func TestGatekeeperChecksEveryRequest(t *testing.T) {
	v := &fakeValidator{tokens: map[string]domain.Identity{"tok": {UserID: "u1"}}}
	r := newGatekeeperRouter(v)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/private", "Bearer tok").Code)
	delete(v.tokens, "tok")
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/private", "Bearer tok").Code)
	assert.Equal(t, 2, v.calls)
}

func TestGatekeeperStoreFaultFailsClosed(t *testing.T) {
	v := &fakeValidator{err: errors.New("dial tcp: i/o timeout")}
	r := newGatekeeperRouter(v)

	w := do(r, http.MethodGet, "/private", "Bearer tok")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "timeout")
}

func TestGatekeeperUnknownRouteRequiresToken(t *testing.T) {
	r := newGatekeeperRouter(&fakeValidator{})

	w := do(r, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBearerToken(t *testing.T) {
	tok, err := BearerToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)

	_, err = BearerToken("Token abc")
	assert.ErrorIs(t, err, ErrMissingToken)
}
