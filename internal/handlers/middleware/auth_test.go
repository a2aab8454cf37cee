package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/peertutor/coinledger/internal/apperrors"
	"github.com/peertutor/coinledger/internal/handlers/userctx"
	"github.com/peertutor/coinledger/internal/models"
)

// Allow to use a function as user storage
type userGetterFunc func(ctx context.Context, id uuid.UUID) (models.User, error)

func (f userGetterFunc) GetUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	return f(ctx, id)
}

func signToken(t *testing.T, secret string, userID uuid.UUID, role string) string {
	t.Helper()

	claims := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: userID,
		Role:   role,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err, "signing test token should not fail")

	return token
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "test-secret"

	knownUser := models.User{ID: uuid.New(), Name: "test-user", Role: models.RoleStudent}

	users := userGetterFunc(func(ctx context.Context, id uuid.UUID) (models.User, error) {
		if id == knownUser.ID {
			return knownUser, nil
		}
		return models.User{}, apperrors.ErrUserNotFound
	})

	// Handler that echoes the name of the user the middleware resolved
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		require.True(t, ok, "middleware must set user before calling next")

		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte(user.Name))
		require.NoError(t, err)
	})

	srv := httptest.NewServer(AuthMiddleware(secret, users)(handler))
	t.Cleanup(srv.Close)

	doGet := func(t *testing.T, authorization string) (int, string) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/test", nil)
		require.NoError(t, err)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		defer resp.Body.Close() // nolint:errcheck

		return resp.StatusCode, string(body)
	}

	t.Run("valid token", func(t *testing.T) {
		token := signToken(t, secret, knownUser.ID, knownUser.Role)

		code, body := doGet(t, "Bearer "+token)

		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "test-user", body)
	})

	t.Run("missing header", func(t *testing.T) {
		code, body := doGet(t, "")

		require.Equal(t, http.StatusUnauthorized, code)
		require.JSONEq(t, `{"error": "service_error", "message": "Unauthorized"}`, body)
	})

	t.Run("wrong signing key", func(t *testing.T) {
		token := signToken(t, "other-secret", knownUser.ID, knownUser.Role)

		code, _ := doGet(t, "Bearer "+token)

		require.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("token subject unknown", func(t *testing.T) {
		token := signToken(t, secret, uuid.New(), models.RoleStudent)

		code, _ := doGet(t, "Bearer "+token)

		require.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("expired token", func(t *testing.T) {
		claims := AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
			UserID: knownUser.ID,
			Role:   knownUser.Role,
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)

		code, _ := doGet(t, "Bearer "+token)

		require.Equal(t, http.StatusUnauthorized, code)
	})
}
