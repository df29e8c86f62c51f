// Package verconstraint evaluates the dependency-declaration version
// constraint grammar from spec §4.E: "=", ">=", ">", "<=", "<", "~x.y"
// (meaning >= x.y.0, < x.(y+1).0), and comma-joined conjunctions of those.
//
// Masterminds/semver/v3 supplies version parsing and comparison; its own
// constraint mini-language is not used because it does not match the
// grammar above byte-for-byte (its "~" and range operators differ), so the
// conjunction/operator parsing here is hand-rolled on top of
// semver.Version.Compare.
package verconstraint

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Constraint is a parsed, ready-to-evaluate version constraint.
type Constraint struct {
	clauses []clause
	raw     string
}

type clause struct {
	op  string
	ver *semver.Version
	// for "~x.y": upper is the exclusive bound x.(y+1).0
	upper *semver.Version
}

// Parse compiles a constraint expression. An empty string matches anything.
func Parse(expr string) (*Constraint, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &Constraint{raw: expr}, nil
	}

	parts := strings.Split(expr, ",")
	c := &Constraint{raw: expr}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		cl, err := parseClause(p)
		if err != nil {
			return nil, fmt.Errorf("version constraint %q: %w", expr, err)
		}
		c.clauses = append(c.clauses, cl)
	}
	return c, nil
}

func parseClause(p string) (clause, error) {
	switch {
	case strings.HasPrefix(p, ">="):
		return newClause(">=", strings.TrimSpace(p[2:]))
	case strings.HasPrefix(p, "<="):
		return newClause("<=", strings.TrimSpace(p[2:]))
	case strings.HasPrefix(p, ">"):
		return newClause(">", strings.TrimSpace(p[1:]))
	case strings.HasPrefix(p, "<"):
		return newClause("<", strings.TrimSpace(p[1:]))
	case strings.HasPrefix(p, "="):
		return newClause("=", strings.TrimSpace(p[1:]))
	case strings.HasPrefix(p, "~"):
		return newTildeClause(strings.TrimSpace(p[1:]))
	default:
		return newClause("=", p)
	}
}

func newClause(op, verStr string) (clause, error) {
	v, err := semver.NewVersion(verStr)
	if err != nil {
		return clause{}, fmt.Errorf("invalid version %q: %w", verStr, err)
	}
	return clause{op: op, ver: v}, nil
}

func newTildeClause(verStr string) (clause, error) {
	v, err := semver.NewVersion(verStr)
	if err != nil {
		return clause{}, fmt.Errorf("invalid version %q: %w", verStr, err)
	}
	upper := v.IncMinor()
	return clause{op: "~", ver: v, upper: &upper}, nil
}

// Matches reports whether the given version string satisfies the
// constraint. An unparsable candidate version never matches.
func (c *Constraint) Matches(versionStr string) bool {
	if c == nil || len(c.clauses) == 0 {
		return true
	}
	v, err := semver.NewVersion(strings.TrimSpace(versionStr))
	if err != nil {
		return false
	}
	for _, cl := range c.clauses {
		if !cl.matches(v) {
			return false
		}
	}
	return true
}

func (cl clause) matches(v *semver.Version) bool {
	switch cl.op {
	case "=":
		return v.Equal(cl.ver)
	case ">=":
		return v.Compare(cl.ver) >= 0
	case ">":
		return v.Compare(cl.ver) > 0
	case "<=":
		return v.Compare(cl.ver) <= 0
	case "<":
		return v.Compare(cl.ver) < 0
	case "~":
		return v.Compare(cl.ver) >= 0 && v.Compare(cl.upper) < 0
	default:
		return false
	}
}

// String returns the original constraint expression.
func (c *Constraint) String() string {
	if c == nil {
		return ""
	}
	return c.raw
}

// Compare compares two version strings the way the resolver ranks
// candidates: higher semver wins. Unparsable versions sort lowest.
func Compare(a, b string) int {
	va, errA := semver.NewVersion(strings.TrimSpace(a))
	vb, errB := semver.NewVersion(strings.TrimSpace(b))
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	default:
		return va.Compare(vb)
	}
}
