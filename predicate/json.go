package predicate

import (
	"encoding/json"
	"errors"
	"fmt"
)

// wire is the declarative form of an Expr:
//
//	{"attr": "state", "op": "eq", "value": "on"}
//	{"name": true, "op": "ne", "value": "header"}
//	{"and": [...]}, {"or": [...]}, {"not": {...}}
type wire struct {
	Attr  string `json:"attr,omitempty"`
	Name  bool   `json:"name,omitempty"`
	Op    Op     `json:"op,omitempty"`
	Value any    `json:"value,omitempty"`
	And   []wire `json:"and,omitempty"`
	Or    []wire `json:"or,omitempty"`
	Not   *wire  `json:"not,omitempty"`
}

// Parse reads the JSON form of an expression.
func Parse(data []byte) (Expr, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return Expr{}, fmt.Errorf("predicate: %w", err)
	}
	e, err := w.expr()
	if err != nil {
		return Expr{}, fmt.Errorf("predicate: %w", err)
	}
	return e, nil
}

func (w wire) expr() (Expr, error) {
	forms := 0
	for _, set := range []bool{w.Op != "", w.And != nil, w.Or != nil, w.Not != nil} {
		if set {
			forms++
		}
	}
	if forms != 1 {
		return Expr{}, errors.New("expression needs exactly one of op, and, or, not")
	}
	switch {
	case w.And != nil || w.Or != nil:
		list := w.And
		if w.Or != nil {
			list = w.Or
		}
		args := make([]Expr, len(list))
		for i, a := range list {
			e, err := a.expr()
			if err != nil {
				return Expr{}, err
			}
			args[i] = e
		}
		if w.Or != nil {
			return Or(args...), nil
		}
		return And(args...), nil
	case w.Not != nil:
		e, err := w.Not.expr()
		if err != nil {
			return Expr{}, err
		}
		return Not(e), nil
	}

	if !w.Op.valid() {
		return Expr{}, fmt.Errorf("unknown op %q", w.Op)
	}
	if w.Name == (w.Attr != "") {
		return Expr{}, errors.New("comparison needs either attr or name")
	}
	switch {
	case w.Op == OpExists || w.Op == OpAbsent:
		if w.Value != nil {
			return Expr{}, fmt.Errorf("%s takes no value", w.Op)
		}
	case w.Value == nil:
		return Expr{}, fmt.Errorf("%s needs a value", w.Op)
	case w.Op.numeric():
		if _, ok := w.Value.(float64); !ok {
			return Expr{}, fmt.Errorf("%s needs a number", w.Op)
		}
	}
	return Expr{kind: kindLeaf, field: w.Attr, name: w.Name, op: w.Op, value: w.Value}, nil
}

func (e Expr) wire() wire {
	switch e.kind {
	case kindAnd, kindOr:
		list := make([]wire, len(e.args))
		for i, a := range e.args {
			list[i] = a.wire()
		}
		if e.kind == kindOr {
			return wire{Or: list}
		}
		return wire{And: list}
	case kindNot:
		w := e.args[0].wire()
		return wire{Not: &w}
	}
	if e.isTrue() {
		return wire{And: []wire{}}
	}
	return wire{Attr: e.field, Name: e.name, Op: e.op, Value: e.value}
}

// MarshalJSON implements json.Marshaler.
func (e Expr) MarshalJSON() ([]byte, error) { return json.Marshal(e.wire()) }

// UnmarshalJSON implements json.Unmarshaler.
func (e *Expr) UnmarshalJSON(data []byte) error {
	x, err := Parse(data)
	if err != nil {
		return err
	}
	*e = x
	return nil
}
