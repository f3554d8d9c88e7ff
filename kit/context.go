package kit

import "context"

type contextKey string

const (
	requestIDKey contextKey = "kit_request_id"
	transportKey contextKey = "kit_transport"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithTransport records how a call arrived: "mcp", "http" or "cli".
func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, transportKey, t)
}

// GetTransport defaults to "cli".
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(transportKey).(string); ok {
		return v
	}
	return "cli"
}
