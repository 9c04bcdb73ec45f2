// Package filter implements the predicate AST, recursive-descent parser,
// and evaluator for the SQL-like filter-expression grammar (spec.md §4.6,
// §4.7).
package filter

import (
	"regexp"

	"github.com/eztools-software/filedb/internal/value"
)

// Op enumerates the comparison and membership operators an Atom can carry.
type Op int

const (
	Eq Op = iota
	Ne
	Lt
	Le
	Gt
	Ge
	In
	Regex
	Contains
)

// MatchMode controls case sensitivity for string comparisons.
type MatchMode int

const (
	CaseSensitive MatchMode = iota
	CaseInsensitive
)

// BoolOp joins Group children.
type BoolOp int

const (
	And BoolOp = iota
	Or
)

// RHSKind tags which form an Atom's right-hand side takes.
type RHSKind int

const (
	RHSNull RHSKind = iota
	RHSScalar
	RHSList
	RHSPattern
)

// RHS is an Atom's right-hand side: a scalar literal, a literal list (IN),
// a regex pattern string, or NULL.
type RHS struct {
	Kind    RHSKind
	Scalar  value.Value
	List    []value.Value
	Pattern string

	// Raw carries the original unparsed literal tokens for scalars/lists
	// whose field type is not known until evaluation time, so they can be
	// coerced lazily (spec.md §4.6: "coerced to the field type... lazily,
	// once"). The parser fills Raw for every scalar literal (quoted strings
	// unescaped, numbers verbatim, including the CONTAINS needle) and
	// RawList for IN lists; Raw is empty for NULL and for REGEX, whose text
	// is in Pattern. Scalar and List are not filled by the parser.
	Raw     string
	RawList []string
}

// Node is either an Atom or a Group.
type Node interface {
	node()
}

// Atom is a single field comparison (spec.md §4.6).
type Atom struct {
	FieldName string
	Op        Op
	Rhs       RHS
	MatchMode MatchMode
	Negated   bool

	// resolved caches the field-typed RHS, computed once on first
	// evaluation (spec.md §4.6: "coerced to the field type... lazily,
	// once").
	resolved     bool
	resolvedOne  value.Value
	resolvedList []value.Value
	resolvedRe   *regexp.Regexp
}

func (*Atom) node() {}

// Group is a boolean combination of child nodes, reduced left-to-right
// with short-circuit evaluation (spec.md §4.6).
type Group struct {
	BoolOp   BoolOp
	Children []Node
}

func (*Group) node() {}
