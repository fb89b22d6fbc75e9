package filter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadFile appends the rules of the file at path. See ReadRules for the
// format.
func (c *Chain) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open filter file: %w", err)
	}
	defer f.Close()

	if err := c.ReadRules(f); err != nil {
		return fmt.Errorf("filter file %s: %w", path, err)
	}
	return nil
}

// ReadRules appends one rule per line of r:
//
//	+ PATTERN         include
//	- PATTERN         exclude
//	include PATTERN   include
//	exclude PATTERN   exclude
//	PATTERN           exclude
//
// Blank lines and lines starting with "#" or ";" are skipped.
func (c *Chain) ReadRules(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || text[0] == '#' || text[0] == ';' {
			continue
		}

		action, pattern := parseRule(text)
		if err := c.add(pattern, action); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return sc.Err()
}

func parseRule(text string) (Action, string) {
	for _, p := range []struct {
		prefix string
		action Action
	}{
		{"+ ", Include},
		{"- ", Exclude},
		{"include ", Include},
		{"exclude ", Exclude},
	} {
		if rest, ok := strings.CutPrefix(text, p.prefix); ok {
			return p.action, strings.TrimSpace(rest)
		}
	}
	return Exclude, text
}
