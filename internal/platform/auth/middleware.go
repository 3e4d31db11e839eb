package auth

import (
	"context"
	"net/http"

	"github.com/biomonitor-labs/biomonitor-go/internal/platform/httpserver"
)

type ctxKeyIdentity struct{}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(ctxKeyIdentity{}).(Identity)
	return v, ok
}

// Middleware enforces authentication on the wrapped handler. In disabled mode
// the request passes through with an anonymous identity.
func Middleware(authenticator Authenticator, mode Mode, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if mode == ModeDisabled {
			r = r.WithContext(context.WithValue(r.Context(), ctxKeyIdentity{}, Identity{Subject: "anonymous"}))
			next.ServeHTTP(w, r)
			return
		}
		identity, err := authenticator.Authenticate(r.Context(), r)
		if err != nil {
			httpserver.WriteJSON(w, http.StatusUnauthorized, map[string]any{
				"error": "unauthenticated",
			})
			return
		}
		r = r.WithContext(context.WithValue(r.Context(), ctxKeyIdentity{}, identity))
		next.ServeHTTP(w, r)
	})
}
