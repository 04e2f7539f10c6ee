package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realorai/session-service/internal/model"
	"github.com/realorai/session-service/pkg/logger"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims(sub string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "authenticated",
	}
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetUserID(r.Context())))
	})
}

func TestAuth(t *testing.T) {
	handler := Auth(testSecret)(echoUser())

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
		body   string
	}{
		{
			name:   "missing header",
			setup:  func(*http.Request) {},
			status: http.StatusUnauthorized,
		},
		{
			name: "malformed header",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Token abc")
			},
			status: http.StatusUnauthorized,
		},
		{
			name: "valid bearer token",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("user-1")))
			},
			status: http.StatusOK,
			body:   "user-1",
		},
		{
			name: "valid query token",
			setup: func(r *http.Request) {
				q := r.URL.Query()
				q.Set("access_token", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("user-2")))
				r.URL.RawQuery = q.Encode()
			},
			status: http.StatusOK,
			body:   "user-2",
		},
		{
			name: "wrong secret",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims("user-1")))
			},
			status: http.StatusUnauthorized,
		},
		{
			name: "wrong algorithm",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims("user-1")))
			},
			status: http.StatusUnauthorized,
		},
		{
			name: "expired",
			setup: func(r *http.Request) {
				c := validClaims("user-1")
				c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
				r.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, []byte(testSecret), c))
			},
			status: http.StatusUnauthorized,
		},
		{
			name: "missing subject",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("")))
			},
			status: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestLoggingSetsCorrelationID(t *testing.T) {
	handler := Logging(logger.NewNop())(Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "corr-1", GetCorrelationID(r.Context()))
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "corr-1")
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("user-1")))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "corr-1", rec.Header().Get("X-Correlation-ID"))
}

func TestUserRateLimit(t *testing.T) {
	limited := Auth(testSecret)(UserRateLimit(2, time.Minute)(echoUser()))
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("user-1"))
	other := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("user-2"))

	do := func(tok string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do(token))
	assert.Equal(t, http.StatusOK, do(token))
	assert.Equal(t, http.StatusTooManyRequests, do(token))
	assert.Equal(t, http.StatusOK, do(other))
}

func TestValidateStruct(t *testing.T) {
	err := ValidateStruct(&model.DecisionRequest{Guess: "maybe"})
	require.Error(t, err)
	assert.Equal(t, map[string]string{"guess": "guess must be one of: real, ai"}, FormatValidationErrors(err))

	err = ValidateStruct(&model.SendMessageRequest{})
	require.Error(t, err)
	assert.Equal(t, "content is required", FormatValidationErrors(err)["content"])

	assert.NoError(t, ValidateStruct(&model.DecisionRequest{Guess: model.GuessAI}))
	assert.NoError(t, ValidateStruct(&model.SendMessageRequest{Content: "hi"}))
}
