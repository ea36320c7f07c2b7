package store

import (
	"fmt"
	"strings"
)

type conditionKind int

const (
	condNone conditionKind = iota
	condNotExists
	condExists
	condVersionEquals
)

// Condition guards a write. The zero value always holds.
type Condition struct {
	kind    conditionKind
	version int64
}

// Always is the empty condition.
func Always() Condition { return Condition{} }

// NotExists holds when the item is absent or expired.
func NotExists() Condition { return Condition{kind: condNotExists} }

// Exists holds when the item is present.
func Exists() Condition { return Condition{kind: condExists} }

// VersionEquals holds when the item is present at version v.
func VersionEquals(v int64) Condition {
	return Condition{kind: condVersionEquals, version: v}
}

// ExpectVersion is the optimistic-concurrency condition for an aggregate read
// at version v: NotExists for 0, VersionEquals otherwise.
func ExpectVersion(v int64) Condition {
	if v == 0 {
		return NotExists()
	}
	return VersionEquals(v)
}

func (c Condition) String() string {
	switch c.kind {
	case condNotExists:
		return "not exists"
	case condExists:
		return "exists"
	case condVersionEquals:
		return fmt.Sprintf("version = %d", c.version)
	default:
		return "always"
	}
}

// check evaluates the condition against the live item (nil when absent).
func (c Condition) check(existing *Item) error {
	switch c.kind {
	case condNone:
		return nil
	case condNotExists:
		if existing == nil {
			return nil
		}
	case condExists:
		if existing != nil {
			return nil
		}
	case condVersionEquals:
		if existing != nil && existing.Version == c.version {
			return nil
		}
	}
	return fmt.Errorf("%w (%s)", ErrConditionFailed, c)
}

type sortOp int

const (
	sortAll sortOp = iota
	sortPrefix
	sortBetween
	sortEQ
	sortLT
	sortLE
	sortGT
	sortGE
)

// SortPredicate filters sort keys within a partition. The zero value
// matches everything.
type SortPredicate struct {
	op   sortOp
	a, b string
}

// AllSortKeys matches every item of the partition.
func AllSortKeys() SortPredicate { return SortPredicate{} }

// SortPrefix matches sort keys beginning with p.
func SortPrefix(p string) SortPredicate { return SortPredicate{op: sortPrefix, a: p} }

// SortBetween matches lo <= sk <= hi.
func SortBetween(lo, hi string) SortPredicate {
	return SortPredicate{op: sortBetween, a: lo, b: hi}
}

// SortCompare matches sk <op> v where op is one of =, <, <=, >, >=.
func SortCompare(op, v string) (SortPredicate, error) {
	var o sortOp
	switch op {
	case "=":
		o = sortEQ
	case "<":
		o = sortLT
	case "<=":
		o = sortLE
	case ">":
		o = sortGT
	case ">=":
		o = sortGE
	default:
		return SortPredicate{}, fmt.Errorf("store: unknown sort comparison %q", op)
	}
	return SortPredicate{op: o, a: v}, nil
}

// Matches reports whether sk satisfies the predicate. Comparison is bytewise.
func (p SortPredicate) Matches(sk string) bool {
	switch p.op {
	case sortPrefix:
		return strings.HasPrefix(sk, p.a)
	case sortBetween:
		return sk >= p.a && sk <= p.b
	case sortEQ:
		return sk == p.a
	case sortLT:
		return sk < p.a
	case sortLE:
		return sk <= p.a
	case sortGT:
		return sk > p.a
	case sortGE:
		return sk >= p.a
	default:
		return true
	}
}
