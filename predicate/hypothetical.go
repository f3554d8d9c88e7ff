package predicate

import (
	"context"

	"github.com/hazyhaar/pagelem/remote"
)

// pathHandle is a synthetic node named by the path that reached it.
type pathHandle string

func (h pathHandle) Key() string { return string(h) }

// Hypothetical is a remote.Backend that never touches a real tree: every
// query matches exactly one node and every read comes back empty. Running
// the engine against it reveals the shape of a component's items.
type Hypothetical struct{}

var _ remote.Backend = Hypothetical{}

// Hypothetical implements remote.Hypothetical.
func (Hypothetical) Hypothetical() bool { return true }

func (Hypothetical) Document(context.Context) (remote.Handle, error) { return pathHandle(""), nil }

func (Hypothetical) FindByPath(_ context.Context, root remote.Handle, path string) ([]remote.Handle, error) {
	return []remote.Handle{pathHandle(root.Key() + "|" + path)}, nil
}

func (Hypothetical) Text(context.Context, remote.Handle) (string, error) { return "", nil }

func (Hypothetical) Attribute(context.Context, remote.Handle, string) (string, bool, error) {
	return "", false, nil
}

func (Hypothetical) IsStale(context.Context, remote.Handle) (bool, error) { return false, nil }

func (Hypothetical) FindByID(context.Context, remote.Handle, string) (remote.Handle, error) {
	return nil, nil
}
