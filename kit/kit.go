// Package kit is the transport-neutral plumbing of the inspect service: an
// Endpoint is a typed request handler, middlewares wrap endpoints, and
// RegisterMCPTool exposes an endpoint as an MCP tool.
package kit

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/pagelem/idgen"
)

// Endpoint handles one decoded request.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares; the first one is outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging assigns a request id when the context has none and logs the
// outcome and duration of every call under op.
func Logging(logger *slog.Logger, op string, ids idgen.Generator) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			if GetRequestID(ctx) == "" {
				ctx = WithRequestID(ctx, ids())
			}
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{"op", op, "request_id", GetRequestID(ctx), "transport", GetTransport(ctx), "duration", time.Since(start)}
			if err != nil {
				logger.WarnContext(ctx, "kit: call failed", append(attrs, "error", err)...)
			} else {
				logger.DebugContext(ctx, "kit: call", attrs...)
			}
			return resp, err
		}
	}
}

// Timeout bounds every call by d.
func Timeout(d time.Duration) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}
