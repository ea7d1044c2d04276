package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/merchhq/storeguard/pkg/jwtx"
	"github.com/merchhq/storeguard/pkg/slogx"
)

// AuthnMiddleware extracts and verifies the bearer identity token, if
// one is present, and injects the caller into the request context.
//
// Requests without a usable identity still reach the handler: whether
// an operation requires authentication is a policy-engine decision, not
// a transport one. An invalid token is treated the same as no token,
// logged, and never upgrades to an identity.
func AuthnMiddleware(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			claims, err := v.Verify(raw)
			if err != nil {
				log.Warn("identity token rejected", "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if err := claims.ValidateExpiry(); err != nil {
				log.Warn("identity token outside validity window")
				next.ServeHTTP(w, r)
				return
			}

			ctx = context.WithValue(ctx, CtxKeyUserID, claims.Subject)
			ctx = context.WithValue(ctx, CtxKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
