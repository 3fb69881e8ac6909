// Package rangematch evaluates advisory patched-range expressions against
// concrete crate versions.
//
// An expression is a disjunction of clauses separated by "|". Each clause is
// one of:
//
//   - a two-sided interval, comma separated: ">= 1.2.3, < 2.0.0" (endpoints
//     may mix strict and inclusive operators),
//   - an open ray: "> X", ">= X", "< Y", "<= Y",
//   - a caret clause "^X", which the advisory treats as exactly X patched.
//
// A concrete version is affected iff it is not contained by any clause.
// Versions that fail to parse as semver order below every parseable version.
package rangematch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver"
)

// Expression is a parsed disjunction of patched-range clauses.
type Expression struct {
	clauses []clause
}

type clause struct {
	exact *semver.Version
	lo    *semver.Version
	loInc bool
	hi    *semver.Version
	hiInc bool
}

// Parse parses a patched expression.
//
// Clauses that fail to parse are dropped and reported in the returned error;
// the Expression is still usable. Dropping a clause is conservative: fewer
// versions count as patched, so more count as affected.
func Parse(patched string) (Expression, error) {
	var e Expression
	var errs []error
	for _, raw := range strings.Split(patched, "|") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		c, err := parseClause(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("clause %q: %w", raw, err))
			continue
		}
		e.clauses = append(e.clauses, c)
	}
	return e, errors.Join(errs...)
}

func parseClause(s string) (clause, error) {
	var c clause
	if rest, ok := strings.CutPrefix(s, "^"); ok {
		v, err := semver.NewVersion(strings.TrimSpace(rest))
		if err != nil {
			return c, err
		}
		c.exact = v
		return c, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) > 2 {
		return c, fmt.Errorf("too many endpoints")
	}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		op, lit, err := splitOp(part)
		if err != nil {
			return c, err
		}
		v, err := semver.NewVersion(lit)
		if err != nil {
			return c, err
		}
		switch op {
		case ">", ">=":
			if c.lo != nil {
				return c, fmt.Errorf("duplicate lower bound")
			}
			c.lo, c.loInc = v, op == ">="
		case "<", "<=":
			if c.hi != nil {
				return c, fmt.Errorf("duplicate upper bound")
			}
			c.hi, c.hiInc = v, op == "<="
		}
	}
	if c.lo == nil && c.hi == nil {
		return c, fmt.Errorf("no comparison operator")
	}
	return c, nil
}

func splitOp(s string) (op, lit string, err error) {
	switch {
	case strings.HasPrefix(s, ">="), strings.HasPrefix(s, "<="):
		return s[:2], strings.TrimSpace(s[2:]), nil
	case strings.HasPrefix(s, ">"), strings.HasPrefix(s, "<"):
		return s[:1], strings.TrimSpace(s[1:]), nil
	}
	return "", "", fmt.Errorf("missing comparison operator")
}

// Affected reports whether version falls outside every clause, i.e. the
// advisory considers it unpatched. An empty expression affects everything.
func (e Expression) Affected(version string) bool {
	v, err := semver.NewVersion(strings.TrimSpace(version))
	parsed := err == nil
	for _, c := range e.clauses {
		if c.contains(v, parsed) {
			return false
		}
	}
	return true
}

// contains evaluates one clause. An unparseable concrete version (parsed ==
// false) orders below all parseable versions: it fails any lower bound and
// any exact match, and satisfies any upper bound.
func (c clause) contains(v *semver.Version, parsed bool) bool {
	if c.exact != nil {
		return parsed && v.Equal(c.exact)
	}
	if c.lo != nil {
		if !parsed {
			return false
		}
		if d := v.Compare(c.lo); d < 0 || (d == 0 && !c.loInc) {
			return false
		}
	}
	if c.hi != nil && parsed {
		if d := v.Compare(c.hi); d > 0 || (d == 0 && !c.hiInc) {
			return false
		}
	}
	return true
}
