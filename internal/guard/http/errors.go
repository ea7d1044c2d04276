package http

import (
	"errors"
	"net/http"

	"github.com/merchhq/storeguard/internal/guard/service"
	"github.com/merchhq/storeguard/pkg/httpx"
	"github.com/merchhq/storeguard/pkg/slogx"
)

// errorBody is the JSON error envelope every handler returns. Reason is
// the machine-readable rejection reason when one exists.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

func statusForKind(kind service.Kind) int {
	switch kind {
	case service.KindUnauthenticated:
		return http.StatusUnauthorized
	case service.KindPermissionDenied:
		return http.StatusForbidden
	case service.KindInvalidArgument:
		return http.StatusBadRequest
	case service.KindFailedPrecondition:
		return http.StatusConflict
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindResourceExhausted:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError translates a service error into the HTTP envelope.
// Internal errors are logged with their cause and returned opaque.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := service.KindOf(err)

	body := errorBody{
		Code:    string(kind),
		Message: "internal error",
		Reason:  service.ReasonOf(err),
	}

	if kind == service.KindInternal {
		slogx.FromContext(r.Context()).Error("request failed",
			"path", r.URL.Path, "err", err)
	} else {
		var se *service.Error
		if errors.As(err, &se) {
			body.Message = se.Message
		} else {
			body.Message = err.Error()
		}
	}

	status := statusForKind(kind)
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "60")
	}
	httpx.WriteJSON(w, status, body)
}

func writeBadJSON(w http.ResponseWriter) {
	httpx.WriteJSON(w, http.StatusBadRequest, errorBody{
		Code:    string(service.KindInvalidArgument),
		Message: "invalid JSON body",
	})
}
