// Package userctx carries the authenticated user through request contexts.
// The auth middleware is the only writer; handlers read via FromContext.
package userctx

import (
	"context"

	"github.com/peertutor/coinledger/internal/models"
)

type ctxKey struct{}

// New returns a context carrying the acting user
func New(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext extracts the acting user, reporting whether one was set
func FromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(models.User)
	return u, ok
}
