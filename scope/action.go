package scope

import (
	"context"
	"fmt"

	"github.com/hazyhaar/pagelem/remote"
)

// Action is a write-only operation on a remote node. arg is the value the
// descriptor was set to, nil when invoked without one.
//
// Setting any descriptor to an Action performs the action on the
// descriptor's node: comp.Set(ctx, "button", scope.Click).
type Action func(ctx context.Context, w remote.Writer, h remote.Handle, arg any) error

// Built-in actions.
var (
	Click Action = func(ctx context.Context, w remote.Writer, h remote.Handle, _ any) error {
		return w.Click(ctx, h)
	}
	Clear Action = func(ctx context.Context, w remote.Writer, h remote.Handle, _ any) error {
		return w.Clear(ctx, h)
	}
	Submit Action = func(ctx context.Context, w remote.Writer, h remote.Handle, _ any) error {
		return w.Submit(ctx, h)
	}
	// SendKeys types its argument, which must be a string.
	SendKeys Action = func(ctx context.Context, w remote.Writer, h remote.Handle, arg any) error {
		s, ok := arg.(string)
		if !ok {
			return fmt.Errorf("scope: send_keys needs a string, got %T", arg)
		}
		return w.SendKeys(ctx, h, s)
	}
)

// Keys returns an Action typing s.
func Keys(s string) Action {
	return func(ctx context.Context, w remote.Writer, h remote.Handle, _ any) error {
		return w.SendKeys(ctx, h, s)
	}
}
