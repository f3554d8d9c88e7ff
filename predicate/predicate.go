// Package predicate builds boolean expressions over the accessors of
// resolved components and translates them into locator clauses, so that a
// filter runs remotely as part of the path query instead of reading every
// item back.
//
//	on := predicate.Attr("state").Eq("on")
//	for c, err := range list.Filter(ctx, on) { ... }
//
// Expressions that cannot be translated are evaluated item by item; both
// paths select the same components.
package predicate

import (
	"fmt"
	"strconv"
	"strings"
)

// Op is a leaf comparison.
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpContains Op = "contains"
	OpGt       Op = "gt"
	OpGe       Op = "ge"
	OpLt       Op = "lt"
	OpLe       Op = "le"
	OpExists   Op = "exists"
	OpAbsent   Op = "absent"
)

var opSymbols = map[Op]string{
	OpEq: "=", OpNe: "!=", OpContains: "~=", OpGt: ">", OpGe: ">=", OpLt: "<", OpLe: "<=",
}

func (o Op) valid() bool {
	_, ok := opSymbols[o]
	return ok || o == OpExists || o == OpAbsent
}

func (o Op) numeric() bool { return o == OpGt || o == OpGe || o == OpLt || o == OpLe }

type exprKind int

const (
	kindLeaf exprKind = iota
	kindAnd
	kindOr
	kindNot
)

// Expr is an immutable predicate. The zero Expr is true.
type Expr struct {
	kind exprKind

	// Leaf fields. An empty field with name set compares the component
	// name.
	field string
	name  bool
	op    Op
	value any

	args []Expr
}

// Field is the left side of a comparison.
type Field struct {
	attr string
	name bool
}

// Attr compares the accessor called name.
func Attr(name string) Field { return Field{attr: name} }

// Name compares the component name.
func Name() Field { return Field{name: true} }

func (f Field) leaf(op Op, v any) Expr {
	return Expr{kind: kindLeaf, field: f.attr, name: f.name, op: op, value: v}
}

func (f Field) Eq(v any) Expr          { return f.leaf(OpEq, v) }
func (f Field) Ne(v any) Expr          { return f.leaf(OpNe, v) }
func (f Field) Contains(s string) Expr { return f.leaf(OpContains, s) }
func (f Field) Gt(n float64) Expr      { return f.leaf(OpGt, n) }
func (f Field) Ge(n float64) Expr      { return f.leaf(OpGe, n) }
func (f Field) Lt(n float64) Expr      { return f.leaf(OpLt, n) }
func (f Field) Le(n float64) Expr      { return f.leaf(OpLe, n) }
func (f Field) Exists() Expr           { return f.leaf(OpExists, nil) }
func (f Field) Absent() Expr           { return f.leaf(OpAbsent, nil) }

// And holds when every x holds.
func And(xs ...Expr) Expr { return Expr{kind: kindAnd, args: xs} }

// Or holds when any x holds.
func Or(xs ...Expr) Expr { return Expr{kind: kindOr, args: xs} }

// Not negates x.
func Not(x Expr) Expr { return Expr{kind: kindNot, args: []Expr{x}} }

func (e Expr) isTrue() bool { return e.kind == kindLeaf && e.op == "" }

func (e Expr) String() string {
	switch e.kind {
	case kindAnd, kindOr:
		if len(e.args) == 0 {
			return strconv.FormatBool(e.kind == kindAnd)
		}
		sep := " and "
		if e.kind == kindOr {
			sep = " or "
		}
		parts := make([]string, len(e.args))
		for i, a := range e.args {
			parts[i] = "(" + a.String() + ")"
		}
		return strings.Join(parts, sep)
	case kindNot:
		return "not (" + e.args[0].String() + ")"
	}
	if e.isTrue() {
		return "true"
	}
	lhs := e.field
	if e.name {
		lhs = "name()"
	}
	switch e.op {
	case OpExists:
		return "exists " + lhs
	case OpAbsent:
		return "absent " + lhs
	}
	return fmt.Sprintf("%s %s %s", lhs, opSymbols[e.op], valueLiteral(e.value))
}

func valueLiteral(v any) string {
	switch v := v.(type) {
	case string:
		return strconv.Quote(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return fmt.Sprint(v)
}

// text renders a compared value the way accessors render theirs.
func text(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func number(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case nil:
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(text(v)), 64)
	return f, err == nil
}
