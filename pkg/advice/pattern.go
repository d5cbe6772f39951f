package advice

import (
	"fmt"
	"regexp"
	"strings"
)

// AnyRemaining as the last parameter pattern matches zero or more remaining
// parameters.
const AnyRemaining = ".."

type patternKind uint8

const (
	kindNone patternKind = iota
	kindExact
	kindGlob
	kindRegexp
	kindAlt
)

// Pattern matches class, method, annotation and type names.
//
//	com.acme.OrderService      exact
//	com.acme.*Service          glob, * matches any run of characters
//	execute|executeQuery       alternation of the forms above
//	/^get[A-Z]\w*$/            regular expression
//
// The zero Pattern is empty and constrains nothing.
type Pattern struct {
	raw  string
	kind patternKind
	re   *regexp.Regexp
	alts []Pattern
}

// Compile parses s. An empty string yields the empty pattern.
func Compile(s string) (Pattern, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Pattern{}, nil
	case len(s) >= 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/"):
		re, err := regexp.Compile(s[1 : len(s)-1])
		if err != nil {
			return Pattern{}, fmt.Errorf("pattern %q: %w", s, err)
		}
		return Pattern{raw: s, kind: kindRegexp, re: re}, nil
	case strings.Contains(s, "|"):
		parts := strings.Split(s, "|")
		p := Pattern{raw: s, kind: kindAlt, alts: make([]Pattern, 0, len(parts))}
		for _, part := range parts {
			if strings.TrimSpace(part) == "" {
				return Pattern{}, fmt.Errorf("pattern %q: empty alternative", s)
			}
			alt, err := Compile(part)
			if err != nil {
				return Pattern{}, err
			}
			p.alts = append(p.alts, alt)
		}
		return p, nil
	case strings.Contains(s, "*"):
		expr := "^" + strings.ReplaceAll(regexp.QuoteMeta(s), `\*`, ".*") + "$"
		return Pattern{raw: s, kind: kindGlob, re: regexp.MustCompile(expr)}, nil
	}
	return Pattern{raw: s, kind: kindExact}, nil
}

// MustCompile is Compile that panics on error.
func MustCompile(s string) Pattern {
	p, err := Compile(s)
	if err != nil {
		panic(err)
	}
	return p
}

// IsEmpty reports whether the pattern constrains nothing.
func (p Pattern) IsEmpty() bool { return p.kind == kindNone }

// String returns the source text.
func (p Pattern) String() string { return p.raw }

// Match reports whether name matches. The empty pattern matches everything.
func (p Pattern) Match(name string) bool {
	switch p.kind {
	case kindNone:
		return true
	case kindExact:
		return p.raw == name
	case kindGlob, kindRegexp:
		return p.re.MatchString(name)
	case kindAlt:
		for _, a := range p.alts {
			if a.Match(name) {
				return true
			}
		}
	}
	return false
}

// MatchAny reports whether any of names matches. The empty pattern matches
// even an empty list.
func (p Pattern) MatchAny(names []string) bool {
	if p.IsEmpty() {
		return true
	}
	for _, n := range names {
		if p.Match(n) {
			return true
		}
	}
	return false
}

// ParamPatterns matches a parameter type list positionally.
type ParamPatterns struct {
	set       bool
	fixed     []Pattern
	remaining bool
}

// CompileParams parses per-position patterns. A nil slice leaves parameters
// unconstrained; an empty non-nil slice matches only no-arg methods.
func CompileParams(ps []string) (ParamPatterns, error) {
	if ps == nil {
		return ParamPatterns{}, nil
	}
	out := ParamPatterns{set: true, fixed: make([]Pattern, 0, len(ps))}
	for i, s := range ps {
		if strings.TrimSpace(s) == AnyRemaining {
			if i != len(ps)-1 {
				return ParamPatterns{}, fmt.Errorf("%q is only allowed as the last parameter pattern", AnyRemaining)
			}
			out.remaining = true
			break
		}
		p, err := Compile(s)
		if err != nil {
			return ParamPatterns{}, err
		}
		if p.IsEmpty() {
			return ParamPatterns{}, fmt.Errorf("parameter pattern %d is empty", i)
		}
		out.fixed = append(out.fixed, p)
	}
	return out, nil
}

// Match reports whether params satisfy the patterns.
func (pp ParamPatterns) Match(params []string) bool {
	if !pp.set {
		return true
	}
	if len(params) < len(pp.fixed) {
		return false
	}
	if !pp.remaining && len(params) != len(pp.fixed) {
		return false
	}
	for i, p := range pp.fixed {
		if !p.Match(params[i]) {
			return false
		}
	}
	return true
}
