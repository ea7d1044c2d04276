package http

import (
	"net/http"

	"github.com/merchhq/storeguard/internal/guard/domain"
	"github.com/merchhq/storeguard/pkg/httpx"
)

// callerFromRequest assembles the domain caller from the verified
// identity (injected by AuthnMiddleware, absent for anonymous calls)
// plus the transport metadata the registration guard inspects.
func callerFromRequest(r *http.Request) domain.Caller {
	ctx := r.Context()

	caller := domain.Caller{
		ID:        httpx.CallerID(ctx),
		IP:        httpx.ClientIP(r),
		UserAgent: r.UserAgent(),
	}

	if claims, ok := httpx.CallerClaims(ctx); ok {
		caller.Email = claims.Email
		caller.Claims = domain.CallerClaims{
			Admin: claims.Admin,
			Role:  domain.Role(claims.Role),
		}
	}

	return caller
}
