package predicate

import (
	"context"
	"errors"
	"strings"

	"github.com/hazyhaar/pagelem"
	"github.com/hazyhaar/pagelem/engine"
)

var _ engine.Predicate = Expr{}

// Eval decides e on one component. Accessors whose node or value is
// missing read as absent.
func (e Expr) Eval(ctx context.Context, it *engine.Component) (bool, error) {
	switch e.kind {
	case kindAnd:
		for _, a := range e.args {
			if ok, err := a.Eval(ctx, it); err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case kindOr:
		for _, a := range e.args {
			if ok, err := a.Eval(ctx, it); err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case kindNot:
		ok, err := e.args[0].Eval(ctx, it)
		return !ok && err == nil, err
	}
	if e.isTrue() {
		return true, nil
	}
	var v any
	if e.name {
		v = it.Name
	} else {
		got, err := it.Get(ctx, e.field)
		switch {
		case err == nil:
			v = got
		case errors.Is(err, pagelem.ErrNotFound):
		default:
			return false, err
		}
	}
	return compare(e.op, v, e.value), nil
}

func compare(op Op, v, want any) bool {
	switch op {
	case OpExists:
		return v != nil
	case OpAbsent:
		return v == nil
	}
	if v == nil {
		return op == OpNe
	}
	if op.numeric() {
		a, ok := number(v)
		b, ok2 := number(want)
		if !ok || !ok2 {
			return false
		}
		switch op {
		case OpGt:
			return a > b
		case OpGe:
			return a >= b
		case OpLt:
			return a < b
		}
		return a <= b
	}
	switch op {
	case OpEq:
		return text(v) == text(want)
	case OpNe:
		return text(v) != text(want)
	case OpContains:
		return strings.Contains(text(v), text(want))
	}
	return false
}
