package kit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// DecodeFunc turns the raw arguments of a tool call into an endpoint
// request.
type DecodeFunc func(*mcp.CallToolRequest) (any, error)

// JSON decodes the arguments into a fresh *T.
func JSON[T any]() DecodeFunc {
	return func(req *mcp.CallToolRequest) (any, error) {
		v := new(T)
		if len(req.Params.Arguments) == 0 {
			return v, nil
		}
		if err := json.Unmarshal(req.Params.Arguments, v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// Schema builds a JSON object schema.
func Schema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// RegisterMCPTool exposes endpoint as tool on srv. Decode and endpoint
// failures become tool errors; the response is returned as JSON text.
func RegisterMCPTool(srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint, decode DecodeFunc) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		in, err := decode(req)
		if err != nil {
			return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
		}
		resp, err := endpoint(WithTransport(ctx, "mcp"), in)
		if err != nil {
			return toolError(err), nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			return toolError(fmt.Errorf("marshal: %w", err)), nil
		}
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}, nil
	})
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}
