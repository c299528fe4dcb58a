package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/parque/internal/core"
)

// WithRequestMetadata adds the client IP and User-Agent to ctx so the job
// log can say where an upload came from.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithClientIP(ctx, r.RemoteAddr) // already rewritten by TrustedRealIP
	return core.ContextWithUserAgent(ctx, r.Header.Get("User-Agent"))
}
