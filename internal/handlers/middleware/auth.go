package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/peertutor/coinledger/internal/handlers/render"
	"github.com/peertutor/coinledger/internal/handlers/userctx"
	"github.com/peertutor/coinledger/internal/models"
)

// AccessTokenClaims is what the external identity provider signs into access
// tokens. The user id inside is trusted as the acting party for every
// operation; no re-authentication happens here
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"uid"`
	Role   string    `json:"role"`
}

type userGetter interface {
	GetUser(ctx context.Context, id uuid.UUID) (models.User, error)
}

func AuthMiddleware(secretKey string, users userGetter) func(http.Handler) http.Handler {
	keyFunc := func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secretKey), nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authenticate(r, keyFunc, users)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := userctx.New(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, keyFunc jwt.Keyfunc, users userGetter) (models.User, error) {
	var user models.User

	header := r.Header.Get("Authorization")
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return user, errors.New("missing bearer token")
	}

	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, keyFunc, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return user, fmt.Errorf("invalid access token: %w", err)
	}

	user, err = users.GetUser(r.Context(), claims.UserID)
	if err != nil {
		return user, fmt.Errorf("token subject unknown: %w", err)
	}

	return user, nil
}
