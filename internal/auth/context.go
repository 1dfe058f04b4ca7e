package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sells-group/siteselect/internal/model"
)

type ctxKey struct{}

// Identity is the authenticated principal attached to a request.
type Identity struct {
	User         *model.User
	SessionToken string
}

// WithIdentity stores the principal in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the principal stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.User != nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
