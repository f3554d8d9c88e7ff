package inspect

import (
	"context"
	"maps"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pagelem/idgen"
	"github.com/hazyhaar/pagelem/kit"
)

var templateProps = map[string]any{
	"source":   map[string]any{"type": "string", "description": "Inline page-element markup"},
	"template": map[string]any{"type": "string", "description": "Name of a stored or on-disk template"},
}

var documentProps = map[string]any{
	"html": map[string]any{"type": "string", "description": "HTML document to resolve against"},
	"url":  map[string]any{"type": "string", "description": "URL to open in the browser"},
}

func props(sets ...map[string]any) map[string]any {
	out := map[string]any{}
	for _, s := range sets {
		maps.Copy(out, s)
	}
	return out
}

// endpoint adapts a typed Service method to a kit.Endpoint.
func endpoint[Req, Resp any](fn func(context.Context, *Req) (*Resp, error)) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		return fn(ctx, req.(*Req))
	}
}

// RegisterMCP registers the pagelem_* tools on srv.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	ids := idgen.Prefixed("req_", idgen.UUIDv7())
	register := func(tool *mcp.Tool, ep kit.Endpoint, decode kit.DecodeFunc) {
		mws := []kit.Middleware{kit.Logging(s.logger, tool.Name, ids)}
		if s.timeout > 0 {
			mws = append(mws, kit.Timeout(s.timeout))
		}
		kit.RegisterMCPTool(srv, tool, kit.Chain(mws...)(ep), decode)
	}

	register(&mcp.Tool{
		Name:        "pagelem_check",
		Description: "Compile page-element markup and report the first parse error with its position.",
		InputSchema: kit.Schema(templateProps),
	}, endpoint(s.Check), kit.JSON[CheckRequest]())

	register(&mcp.Tool{
		Name:        "pagelem_tree",
		Description: "List the named components of a template with their compiled XPath locators.",
		InputSchema: kit.Schema(templateProps),
	}, endpoint(s.Tree), kit.JSON[TreeRequest]())

	register(&mcp.Tool{
		Name:        "pagelem_resolve",
		Description: "Resolve a template against an HTML document or URL and return the values of a component and its children.",
		InputSchema: kit.Schema(props(templateProps, documentProps, map[string]any{
			"path": map[string]any{"type": "string", "description": "Dot separated component path, empty for the page"},
			"wait": map[string]any{"type": "string", "enum": []any{"short", "medium", "long"}, "description": "Wait for page readiness first"},
		})),
	}, endpoint(s.Resolve), kit.JSON[ResolveRequest]())

	register(&mcp.Tool{
		Name:        "pagelem_translate",
		Description: "Translate a predicate over component accessors into an XPath clause; with a document, also list the matching items.",
		InputSchema: kit.Schema(props(templateProps, documentProps, map[string]any{
			"path": map[string]any{"type": "string", "description": "Component whose items are filtered"},
			"predicate": map[string]any{
				"type":        "object",
				"description": `Predicate, e.g. {"attr":"state","op":"eq","value":"on"} or {"and":[...]}`,
			},
		}), "predicate"),
	}, endpoint(s.Translate), kit.JSON[TranslateRequest]())
}
