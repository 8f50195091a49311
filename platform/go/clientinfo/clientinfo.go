package clientinfo

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const (
	ctxClientInfo contextKey = "RENTFLOW_CLIENT_INFO"
)

// UnknownIP is recorded when no forwarding header identifies the caller.
const UnknownIP = "unknown"

// Info captures request-scoped caller metadata recorded alongside signature events.
// IPAddress is the first X-Forwarded-For hop or UnknownIP; UserAgent may be empty.
type Info struct {
	IPAddress string
	UserAgent string
	RequestID string
}

// IntoContext stores the Info in the provided context.
func IntoContext(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, ctxClientInfo, info)
}

// FromContext extracts the Info from context, returning false when not present.
func FromContext(ctx context.Context) (Info, bool) {
	if ctx == nil {
		return Info{}, false
	}
	v := ctx.Value(ctxClientInfo)
	if v == nil {
		return Info{}, false
	}

	info, ok := v.(Info)
	return info, ok
}

// FromContextOrUnknown returns the Info stored on the context, or an unknown-caller record when absent.
func FromContextOrUnknown(ctx context.Context) Info {
	if info, ok := FromContext(ctx); ok {
		return info
	}
	return Info{IPAddress: UnknownIP}
}

// FromRequest derives caller metadata from the request headers.
func FromRequest(r *http.Request) Info {
	return Info{
		IPAddress: ClientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: middleware.GetReqID(r.Context()),
	}
}

// ClientIP returns the first X-Forwarded-For hop, or UnknownIP when the header is absent.
// Only the forwarding header is trusted; RemoteAddr is the proxy, not the signer.
func ClientIP(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		return UnknownIP
	}
	first, _, _ := strings.Cut(forwarded, ",")
	first = strings.TrimSpace(first)
	if first == "" {
		return UnknownIP
	}
	return first
}

// Capture is an HTTP middleware that stores caller metadata on the request context.
func Capture(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := IntoContext(r.Context(), FromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
