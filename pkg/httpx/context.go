package httpx

import (
	"context"

	"github.com/merchhq/storeguard/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyUserID ctxKey = "user_id"
	CtxKeyClaims ctxKey = "claims"
)

// CallerID returns the verified caller subject, or "" when the request
// carried no valid identity token.
func CallerID(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyUserID).(string); ok {
		return v
	}
	return ""
}

// CallerClaims returns the verified claims attached to the request, if
// any.
func CallerClaims(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(jwtx.Claims)
	return c, ok
}
