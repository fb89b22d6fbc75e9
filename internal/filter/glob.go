package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// glob is an rsync-style pattern compiled to a regular expression.
//
//   - a trailing "/" matches directories only
//   - a leading "/", or any "/" inside the pattern, anchors it at the root;
//     otherwise it matches the last components of the path
//   - "*" and "?" never match "/", "**" does, and "**/" matches zero or
//     more leading directories
//   - "[...]" is a character class, "[!...]" its negation
type glob struct {
	re      *regexp.Regexp
	source  string
	dirOnly bool
}

func compileGlob(pattern string) (*glob, error) {
	g := &glob{source: pattern}

	p := pattern
	if strings.HasSuffix(p, "/") {
		g.dirOnly = true
		p = strings.TrimRight(p, "/")
	}
	anchored := strings.Contains(p, "/")
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return nil, fmt.Errorf("%w: empty pattern %q", ErrInvalidRule, pattern)
	}

	var b strings.Builder
	if anchored {
		b.WriteString("^")
	} else {
		b.WriteString("(?:^|/)")
	}
	translate(&b, p)
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidRule, pattern, err)
	}
	g.re = re
	return g, nil
}

func (g *glob) match(relPath string, isDir bool) bool {
	if g.dirOnly && !isDir {
		return false
	}
	return g.re.MatchString(relPath)
}

// translate writes the regular expression for glob p to b.
func translate(b *strings.Builder, p string) {
	for i := 0; i < len(p); i++ {
		switch c := p[i]; c {
		case '*':
			if !strings.HasPrefix(p[i:], "**") {
				b.WriteString("[^/]*")
				continue
			}
			i++
			if strings.HasPrefix(p[i+1:], "/") {
				b.WriteString("(?:.*/)?")
				i++
			} else {
				b.WriteString(".*")
			}
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := classEnd(p, i)
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := p[i+1 : end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i = end
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
}

// classEnd returns the index of the "]" closing the class opened at
// p[start], or -1. A "]" right after "[" or "[!" is a literal member.
func classEnd(p string, start int) int {
	j := start + 1
	if j < len(p) && p[j] == '!' {
		j++
	}
	if j < len(p) && p[j] == ']' {
		j++
	}
	if k := strings.IndexByte(p[j:], ']'); k >= 0 {
		return j + k
	}
	return -1
}
