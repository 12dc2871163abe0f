package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"streamhub/internal/core/domain"
	apperrors "streamhub/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubAuthenticator map[string]domain.Identity

func (s stubAuthenticator) Authenticate(ctx context.Context, token string) (*domain.Identity, error) {
	if token == "expired" {
		return nil, domain.ErrExpiredToken
	}
	identity, ok := s[token]
	if !ok {
		return nil, domain.ErrInvalidToken
	}
	return &identity, nil
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	auth := stubAuthenticator{
		"viewer-token": {UserID: "1", Role: domain.RoleViewer},
		"admin-token":  {UserID: "2", Role: domain.RoleAdmin},
	}
	router := gin.New()
	router.Use(ErrorHandlerMiddleware(zap.NewNop().Sugar()))
	router.GET("/admin", AuthMiddleware(auth), RequireRole(domain.RoleAdmin), func(c *gin.Context) {
		identity, _ := IdentityFrom(c)
		c.String(http.StatusOK, string(identity.UserID))
	})
	return router
}

func doRequest(router http.Handler, authorization string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	router.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuthMiddleware(t *testing.T) {
	router := newAuthRouter()

	cases := []struct {
		name    string
		header  string
		status  int
		code    apperrors.ErrorCode
		message string
	}{
		{"missing header", "", http.StatusUnauthorized, apperrors.ErrCodeUnauthorized, "authorization header required"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, apperrors.ErrCodeUnauthorized, "authorization header required"},
		{"bad token", "Bearer nope", http.StatusUnauthorized, apperrors.ErrCodeUnauthorized, "invalid token"},
		{"expired token", "Bearer expired", http.StatusUnauthorized, apperrors.ErrCodeUnauthorized, "token expired"},
		{"viewer on admin route", "Bearer viewer-token", http.StatusForbidden, apperrors.ErrCodeForbidden, "insufficient rights"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(router, tc.header)
			assert.Equal(t, tc.status, w.Code)
			body := errorBody(t, w)
			assert.Equal(t, string(tc.code), body["error"])
			assert.Equal(t, tc.message, body["message"])
		})
	}

	w := doRequest(router, "Bearer admin-token")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Body.String())
}

func TestErrorHandlerMiddleware_HidesInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandlerMiddleware(zap.NewNop().Sugar()))
	router.GET("/boom", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", errorBody(t, w)["message"])
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RecoveryMiddleware(zap.NewNop().Sugar()))
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
