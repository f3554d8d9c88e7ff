package pagelem

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/pagelem/remote"
)

// ErrorKind classifies every failure the compiler and the engine report.
type ErrorKind int

const (
	// KindParse is malformed markup: unknown tag, bad attribute, illegal
	// containment. Fatal at load time.
	KindParse ErrorKind = iota + 1
	// KindNotFound is a mandatory locator that matched nothing.
	KindNotFound
	// KindUnwanted is a satisfied negative match. Combinators treat it as
	// a miss; it never leaves the engine.
	KindUnwanted
	// KindStale is a component whose remote handle no longer denotes a
	// live node.
	KindStale
	// KindAmbiguous is two registry entries claiming the same key.
	KindAmbiguous
)

func (k ErrorKind) String() string {
	switch k {
	case KindParse:
		return "parse error"
	case KindNotFound:
		return "element not found"
	case KindUnwanted:
		return "unwanted element"
	case KindStale:
		return "stale reference"
	case KindAmbiguous:
		return "ambiguous definition"
	}
	return fmt.Sprintf("error kind %d", int(k))
}

// Error is the single error type of the page-element system.
type Error struct {
	Kind ErrorKind
	Msg  string

	// Locator is the path expression that failed, when there is one.
	Locator string
	// Parent is the remote handle the locator was evaluated against.
	Parent remote.Handle

	// Pos locates parse errors in the template source.
	Pos Position

	Err error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrParse     = &Error{Kind: KindParse}
	ErrNotFound  = &Error{Kind: KindNotFound}
	ErrUnwanted  = &Error{Kind: KindUnwanted}
	ErrStale     = &Error{Kind: KindStale}
	ErrAmbiguous = &Error{Kind: KindAmbiguous}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("pagelem: ")
	b.WriteString(e.Kind.String())
	if e.Kind == KindParse && e.Pos.Line > 0 {
		b.WriteString(" at ")
		b.WriteString(e.Pos.String())
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Locator != "" {
		b.WriteString(": ")
		b.WriteString(e.Locator)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or zero.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// NotFound builds a KindNotFound error for locator queried under parent.
func NotFound(locator string, parent remote.Handle) *Error {
	return &Error{Kind: KindNotFound, Locator: locator, Parent: parent}
}

// Unwanted builds a KindUnwanted error for a negative match that hit.
func Unwanted(locator string, parent remote.Handle) *Error {
	return &Error{Kind: KindUnwanted, Locator: locator, Parent: parent}
}

// Stale wraps a backend staleness failure.
func Stale(msg string, err error) *Error {
	return &Error{Kind: KindStale, Msg: msg, Err: err}
}

// Ambiguous reports a duplicate registration.
func Ambiguous(format string, args ...any) *Error {
	return &Error{Kind: KindAmbiguous, Msg: fmt.Sprintf(format, args...)}
}

func parseErrorf(pos Position, format string, args ...any) *Error {
	return &Error{Kind: KindParse, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// Position is a location in a template source.
type Position struct {
	File string
	Line int
	Col  int
}

func (p Position) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Col)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}
