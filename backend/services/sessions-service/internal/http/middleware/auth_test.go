package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuth(t *testing.T) {
	const secret = "test-secret"
	var gotID int64
	handler := Auth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	exp := time.Now().Add(time.Hour).Unix()
	tests := []struct {
		name   string
		header string
		status int
		userID int64
	}{
		{"missing header", "", http.StatusUnauthorized, 0},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, 0},
		{"bad signature", "Bearer " + signed(t, "other", jwt.MapClaims{"user_id": 1, "exp": exp}), http.StatusUnauthorized, 0},
		{"expired", "Bearer " + signed(t, secret, jwt.MapClaims{"user_id": 1, "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized, 0},
		{"no user", "Bearer " + signed(t, secret, jwt.MapClaims{"exp": exp}), http.StatusUnauthorized, 0},
		{"numeric user_id", "Bearer " + signed(t, secret, jwt.MapClaims{"user_id": 42, "exp": exp}), http.StatusNoContent, 42},
		{"string sub", "Bearer " + signed(t, secret, jwt.MapClaims{"sub": "7", "exp": exp}), http.StatusNoContent, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotID = 0
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.userID, gotID)
		})
	}
}
