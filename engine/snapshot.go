package engine

import (
	"context"
	"fmt"
)

// Snapshot reads every template accessor of c and, recursively, of its
// child components. Children shadow accessors of the same name. Accessors
// that cannot be read are left out.
func Snapshot(ctx context.Context, c *Component) (map[string]any, error) {
	out := map[string]any{}
	names, err := c.Attributes(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		v, err := c.Get(ctx, name)
		switch {
		case err == nil:
			out[name] = v
		case missing(err):
		default:
			return nil, err
		}
	}
	for child, err := range c.Items(ctx) {
		if err != nil {
			return nil, err
		}
		sub, err := Snapshot(ctx, child)
		if err != nil {
			return nil, fmt.Errorf("engine: snapshot %s: %w", child.Path(), err)
		}
		out[child.Name] = sub
	}
	return out, nil
}
