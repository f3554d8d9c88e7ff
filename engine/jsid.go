package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/dop251/goja"

	"github.com/hazyhaar/pagelem"
	"github.com/hazyhaar/pagelem/scope"
)

// bareIDRe matches an id expression written as a plain identifier, which
// is taken literally unless a scope variable has that name.
var bareIDRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// evalID computes the id a match-by-id node looks up. The expression is
// JavaScript evaluated with the page as root and the scope variables both
// as globals and under vars.
func (r *resolver) evalID(ctx context.Context, n *pagelem.Element, sc *scope.Instance) (string, error) {
	expr := n.IDExpr
	vars := sc.Vars()
	if bareIDRe.MatchString(expr) && expr != "root" {
		if _, ok := vars[expr]; !ok {
			return expr, nil
		}
	}
	if r.evaluating[n] {
		return "", fmt.Errorf("engine: %s: id expression %q refers to itself", n, expr)
	}
	if r.evaluating == nil {
		r.evaluating = map[*pagelem.Element]bool{}
	}
	r.evaluating[n] = true
	defer delete(r.evaluating, n)

	vm := goja.New()
	var failed error
	if r.page != nil {
		if err := vm.Set("root", vm.NewDynamicObject(&jsComponent{ctx: ctx, vm: vm, c: r.page, err: &failed})); err != nil {
			return "", err
		}
	}
	for k, v := range vars {
		if k == "root" {
			continue
		}
		if err := vm.Set(k, v); err != nil {
			return "", err
		}
	}
	if err := vm.Set("vars", vars); err != nil {
		return "", err
	}
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	v, err := vm.RunString(expr)
	if failed != nil {
		return "", failed
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var (
			exc *goja.Exception
			syn *goja.CompilerSyntaxError
		)
		switch {
		case errors.As(err, &exc):
			// A missing component reads as undefined, so the expression
			// throws when it dereferences it.
			return "", &pagelem.Error{Kind: pagelem.KindNotFound, Msg: "id expression failed", Locator: expr, Err: err}
		case errors.As(err, &syn):
			return "", &pagelem.Error{Kind: pagelem.KindParse, Msg: fmt.Sprintf("%s: id expression", n), Locator: expr, Err: err}
		}
		return "", fmt.Errorf("engine: id expression %q: %w", expr, err)
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", nil
	}
	return v.String(), nil
}

// jsComponent exposes a component to id expressions: properties are its
// descriptors, then its child components.
type jsComponent struct {
	ctx context.Context
	vm  *goja.Runtime
	c   *Component
	err *error
}

func (o *jsComponent) fail(err error) {
	if *o.err == nil {
		*o.err = err
	}
}

func (o *jsComponent) Get(key string) goja.Value {
	if _, err := o.c.Descriptor(o.ctx, key); err == nil {
		v, err := o.c.Get(o.ctx, key)
		if err != nil {
			o.fail(err)
			return goja.Undefined()
		}
		return o.vm.ToValue(v)
	} else if !errors.Is(err, ErrNoDescriptor) {
		o.fail(err)
		return goja.Undefined()
	}
	child, err := o.c.Child(o.ctx, key)
	if err != nil {
		if !errors.Is(err, pagelem.ErrNotFound) {
			o.fail(err)
		}
		return goja.Undefined()
	}
	return o.vm.NewDynamicObject(&jsComponent{ctx: o.ctx, vm: o.vm, c: child, err: o.err})
}

func (o *jsComponent) Set(string, goja.Value) bool { return false }

func (o *jsComponent) Has(key string) bool { return !goja.IsUndefined(o.Get(key)) }

func (o *jsComponent) Delete(string) bool { return false }

func (o *jsComponent) Keys() []string {
	names, _ := o.c.DescriptorNames(o.ctx)
	return names
}
