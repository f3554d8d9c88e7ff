// Package idgen generates the identifiers of scope frames and catalog rows.
//
// Generators are plain functions so that tests can swap in a deterministic
// Sequence while production code keeps time-sortable UUIDv7 strings.
package idgen

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 version 7 UUIDs.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends a fixed type prefix ("scp_", "tpl_") to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequence returns a Generator of "<prefix>1", "<prefix>2", ... Safe for
// concurrent use; meant for reproducible test output.
func Sequence(prefix string) Generator {
	var n atomic.Int64
	return func() string {
		return prefix + strconv.FormatInt(n.Add(1), 10)
	}
}

var (
	// Default generates catalog row identifiers.
	Default Generator = UUIDv7()
	// ScopeIDs generates scope frame identifiers.
	ScopeIDs Generator = Prefixed("scp_", UUIDv7())
)

// New produces an ID with Default.
func New() string { return Default() }

// Scope produces a scope frame ID with ScopeIDs.
func Scope() string { return ScopeIDs() }

// Parse validates a UUID string and returns its canonical form.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("idgen: invalid UUID %q: %w", s, err)
	}
	return u.String(), nil
}
