// Package remote defines the contract between the resolution engine and a
// tree-shaped remote backend, typically a browser DOM reached through an
// automation driver.
//
// A Backend answers path queries relative to a Handle, reads text and
// attributes, and reports whether a handle still denotes a live node. Write
// operations and script evaluation are optional capabilities discovered with
// type assertions.
package remote

import (
	"context"
	"errors"
)

// ErrStale is returned (wrapped) by a Backend when an operation targets a
// handle whose node has been detached from the document.
var ErrStale = errors.New("remote: stale handle")

// ErrUnsupported is returned when a backend lacks an optional capability.
var ErrUnsupported = errors.New("remote: operation not supported")

// Handle is an opaque reference to one remote node.
type Handle interface {
	// Key identifies the underlying node. Two handles denoting the same
	// node return the same key.
	Key() string
}

// Backend is the minimal remote tree capability.
type Backend interface {
	// Document returns the handle of the document root.
	Document(ctx context.Context) (Handle, error)

	// FindByPath evaluates an XPath expression relative to root and returns
	// the matching element nodes in document order.
	FindByPath(ctx context.Context, root Handle, path string) ([]Handle, error)

	// Text returns the visible text of h.
	Text(ctx context.Context, h Handle) (string, error)

	// Attribute returns the named attribute (or property for "value") of h.
	// The boolean is false when the attribute is absent.
	Attribute(ctx context.Context, h Handle, name string) (string, bool, error)

	// IsStale reports whether h no longer denotes a live node.
	IsStale(ctx context.Context, h Handle) (bool, error)

	// FindByID looks up a single element by its id attribute. It returns
	// nil without error when nothing has that id.
	FindByID(ctx context.Context, doc Handle, id string) (Handle, error)
}

// Writer is implemented by backends that can mutate remote state.
type Writer interface {
	SetProperty(ctx context.Context, h Handle, name string, value any) error
	Clear(ctx context.Context, h Handle) error
	SendKeys(ctx context.Context, h Handle, keys string) error
	Click(ctx context.Context, h Handle) error
	Submit(ctx context.Context, h Handle) error
}

// Evaluator is implemented by backends able to run a script in the page.
// The script is a function body; its return value is converted to Go.
type Evaluator interface {
	Eval(ctx context.Context, script string) (any, error)
}

// PartialTexter returns the text of h restricted to the child nodes found
// after the first child element matching after and before the first child
// element matching before. A marker is a tag name in upper case, "*" for
// any element, or empty for no limit.
type PartialTexter interface {
	PartialText(ctx context.Context, h Handle, after, before string) (string, error)
}

// Hypothetical is implemented by backends that never touch a real tree.
// The engine skips assertions that need real answers (negative matches,
// id lookups) when it runs against such a backend.
type Hypothetical interface {
	Hypothetical() bool
}

// IsHypothetical reports whether b is a synthetic backend.
func IsHypothetical(b Backend) bool {
	h, ok := b.(Hypothetical)
	return ok && h.Hypothetical()
}

// Key names used with Writer.SendKeys for non-printable keys.
const (
	KeyEnd   = "\ue010"
	KeyEnter = "\ue007"
)
