package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/eztools-software/filedb/internal/record"
	"github.com/eztools-software/filedb/internal/schema"
	"github.com/eztools-software/filedb/internal/value"
	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

var (
	collateCS = collate.New(language.Und)
	collateCI = collate.New(language.Und, collate.IgnoreCase)
	foldCase  = cases.Fold()
)

// Eval evaluates node against rec under s, per spec.md §4.6.
func Eval(node Node, rec *record.Record, s *schema.Schema) (bool, error) {
	switch n := node.(type) {
	case *Atom:
		return evalAtom(n, rec, s)
	case *Group:
		return evalGroup(n, rec, s)
	}
	return false, fmt.Errorf("filter: unknown node type %T", node)
}

func evalGroup(g *Group, rec *record.Record, s *schema.Schema) (bool, error) {
	if len(g.Children) == 0 {
		return true, nil
	}
	acc, err := Eval(g.Children[0], rec, s)
	if err != nil {
		return false, err
	}
	for _, child := range g.Children[1:] {
		if g.BoolOp == And && !acc {
			return false, nil
		}
		if g.BoolOp == Or && acc {
			return true, nil
		}
		v, err := Eval(child, rec, s)
		if err != nil {
			return false, err
		}
		if g.BoolOp == And {
			acc = acc && v
		} else {
			acc = acc || v
		}
	}
	return acc, nil
}

func evalAtom(a *Atom, rec *record.Record, s *schema.Schema) (bool, error) {
	f, idx, ok := s.FieldByName(a.FieldName)
	if !ok {
		return false, fmt.Errorf("filter: unknown field %q", a.FieldName)
	}
	if f.IsArray {
		// spec.md §4.6: "Array-typed fields never match."
		return false, nil
	}

	fieldIsNull := rec.Null.Test(uint(idx))
	var fieldVal value.Value
	if !fieldIsNull {
		fieldVal = rec.Fields[idx]
	}

	result, err := compare(a, f.Type, fieldVal, fieldIsNull)
	if err != nil {
		return false, err
	}
	if a.Negated {
		result = !result
	}
	return result, nil
}

func compare(a *Atom, kind value.Kind, fv value.Value, fieldIsNull bool) (bool, error) {
	if err := resolveRHS(a, kind); err != nil {
		return false, err
	}
	ci := a.MatchMode == CaseInsensitive

	switch a.Op {
	case Eq, Ne:
		eq, err := equalOp(a, kind, fv, fieldIsNull, ci)
		if err != nil {
			return false, err
		}
		if a.Op == Ne {
			eq = !eq
		}
		return eq, nil
	case Lt, Le, Gt, Ge:
		if fieldIsNull || a.Rhs.Kind == RHSNull {
			return false, nil
		}
		c := orderCompare(fv, a.resolvedOne, ci)
		switch a.Op {
		case Lt:
			return c < 0, nil
		case Le:
			return c <= 0, nil
		case Gt:
			return c > 0, nil
		case Ge:
			return c >= 0, nil
		}
	case In:
		if fieldIsNull {
			return false, nil
		}
		for _, cand := range a.resolvedList {
			if valuesEqual(fv, cand, ci) {
				return true, nil
			}
		}
		return false, nil
	case Regex:
		if fieldIsNull {
			return false, nil
		}
		return a.resolvedRe.MatchString(fv.Text()), nil
	case Contains:
		if fieldIsNull {
			return false, nil
		}
		hay, needle := fv.Text(), a.Rhs.Raw
		if ci {
			hay, needle = foldCase.String(hay), foldCase.String(needle)
		}
		return strings.Contains(hay, needle), nil
	}
	return false, fmt.Errorf("filter: unhandled operator %v", a.Op)
}

func equalOp(a *Atom, kind value.Kind, fv value.Value, fieldIsNull bool, ci bool) (bool, error) {
	rhsNull := a.Rhs.Kind == RHSNull
	if fieldIsNull || rhsNull {
		// spec.md §4.6: "null==null true, null==x false."
		return fieldIsNull && rhsNull, nil
	}
	return valuesEqual(fv, a.resolvedOne, ci), nil
}

func valuesEqual(a, b value.Value, ci bool) bool {
	if a.Kind == value.KindString && b.Kind == value.KindString {
		return stringCollator(ci).CompareString(a.AsString(), b.AsString()) == 0
	}
	return a.Equal(b)
}

func orderCompare(a, b value.Value, ci bool) int {
	if a.Kind == value.KindString && b.Kind == value.KindString {
		return stringCollator(ci).CompareString(a.AsString(), b.AsString())
	}
	return a.Compare(b)
}

func stringCollator(ci bool) *collate.Collator {
	if ci {
		return collateCI
	}
	return collateCS
}

// resolveRHS coerces Atom.Rhs's raw literal text into typed Values matching
// kind, caching the result so repeated evaluation across many records does
// the work once (spec.md §4.6).
func resolveRHS(a *Atom, kind value.Kind) error {
	if a.resolved {
		return nil
	}
	a.resolved = true

	switch a.Rhs.Kind {
	case RHSScalar:
		v, err := coerceLiteral(kind, a.Rhs.Raw)
		if err != nil {
			return err
		}
		a.resolvedOne = v
	case RHSList:
		list := make([]value.Value, len(a.Rhs.RawList))
		for i, raw := range a.Rhs.RawList {
			v, err := coerceLiteral(kind, raw)
			if err != nil {
				return err
			}
			list[i] = v
		}
		a.resolvedList = list
	case RHSPattern:
		flags := ""
		if a.MatchMode == CaseInsensitive {
			flags = "(?i)"
		}
		re, err := regexp.Compile(flags + a.Rhs.Pattern)
		if err != nil {
			return fmt.Errorf("filter: invalid regex %q: %w", a.Rhs.Pattern, err)
		}
		a.resolvedRe = re
	}
	return nil
}

func coerceLiteral(kind value.Kind, raw string) (value.Value, error) {
	if kind == value.KindString {
		return value.String(raw), nil
	}
	return value.CoerceFromString(kind, raw)
}
