package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func TestGenerateAndParseToken(t *testing.T) {
	t.Parallel()

	token, err := GenerateToken("u-1", "admin", testSecret, time.Minute)
	require.NoError(t, err)

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	require.Equal(t, "u-1", claims.UserID)
	require.Equal(t, "admin", claims.Role)
}

func TestParseToken_Expired(t *testing.T) {
	t.Parallel()

	token, err := GenerateToken("u-1", "admin", testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, testSecret)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseToken_WrongSecret(t *testing.T) {
	t.Parallel()

	token, err := GenerateToken("u-1", "admin", testSecret, time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, []byte("other-secret"))
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordRoundTrip(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	require.True(t, CheckPassword(hash, "hunter2"))
	require.False(t, CheckPassword(hash, "hunter3"))
}

func protectedHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(claims.UserID))
	})
}

func TestRequireAuth_ValidToken(t *testing.T) {
	t.Parallel()

	token, err := GenerateToken("u-1", "user", testSecret, time.Minute)
	require.NoError(t, err)

	handler := RequireAuth(testSecret)(protectedHandler())
	req := httptest.NewRequest(http.MethodGet, "/v1/search", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "u-1", rec.Body.String())
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	t.Parallel()

	handler := RequireAuth(testSecret)(protectedHandler())
	req := httptest.NewRequest(http.MethodGet, "/v1/search", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole_Forbidden(t *testing.T) {
	t.Parallel()

	token, err := GenerateToken("u-1", "user", testSecret, time.Minute)
	require.NoError(t, err)

	handler := RequireAuth(testSecret)(RequireRole("admin")(protectedHandler()))
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireRole_Allowed(t *testing.T) {
	t.Parallel()

	token, err := GenerateToken("u-1", "admin", testSecret, time.Minute)
	require.NoError(t, err)

	handler := RequireAuth(testSecret)(RequireRole("admin")(protectedHandler()))
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
