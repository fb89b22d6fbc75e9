// Package filter decides which walked entries take part in a sync pass.
// Rules are rsync-style globs evaluated in order, first match wins; an
// entry no rule matches is included. An excluded directory is not
// descended into.
package filter

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRule is returned for a pattern or rule line that cannot be
// compiled.
var ErrInvalidRule = errors.New("invalid filter rule")

// Action is what a matching rule does with an entry.
type Action bool

const (
	Exclude Action = false
	Include Action = true
)

func (a Action) String() string {
	if a == Include {
		return "+"
	}
	return "-"
}

// Rule is one compiled include or exclude pattern.
type Rule struct {
	glob   *glob
	Action Action
}

func (r Rule) String() string { return r.Action.String() + " " + r.glob.source }

// Options is the command-line form of a chain. Excludes are added before
// includes, then the rules of File, each in their given order.
type Options struct {
	File     string
	MinSize  string
	MaxSize  string
	Excludes []string
	Includes []string
}

// Chain is an ordered rule list plus optional file size bounds. A nil
// or empty chain includes everything.
type Chain struct {
	rules   []Rule
	minSize int64
	maxSize int64
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

// New builds a chain from opts. It returns a nil chain when opts select
// nothing.
func New(opts Options) (*Chain, error) {
	c := NewChain()
	for _, p := range opts.Excludes {
		if err := c.AddExclude(p); err != nil {
			return nil, err
		}
	}
	for _, p := range opts.Includes {
		if err := c.AddInclude(p); err != nil {
			return nil, err
		}
	}
	if opts.File != "" {
		if err := c.LoadFile(opts.File); err != nil {
			return nil, err
		}
	}

	var err error
	if opts.MinSize != "" {
		if c.minSize, err = ParseSize(opts.MinSize); err != nil {
			return nil, fmt.Errorf("min size: %w", err)
		}
	}
	if opts.MaxSize != "" {
		if c.maxSize, err = ParseSize(opts.MaxSize); err != nil {
			return nil, fmt.Errorf("max size: %w", err)
		}
	}
	if c.maxSize > 0 && c.minSize > c.maxSize {
		return nil, fmt.Errorf("%w: min size %d exceeds max size %d", ErrInvalidRule, c.minSize, c.maxSize)
	}

	if c.Empty() {
		return nil, nil
	}
	return c, nil
}

// AddExclude appends an exclude rule.
func (c *Chain) AddExclude(pattern string) error {
	return c.add(pattern, Exclude)
}

// AddInclude appends an include rule.
func (c *Chain) AddInclude(pattern string) error {
	return c.add(pattern, Include)
}

func (c *Chain) add(pattern string, action Action) error {
	g, err := compileGlob(pattern)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, Rule{glob: g, Action: action})
	return nil
}

// SetMinSize excludes regular files smaller than n bytes; 0 disables.
func (c *Chain) SetMinSize(n int64) { c.minSize = n }

// SetMaxSize excludes regular files larger than n bytes; 0 disables.
func (c *Chain) SetMaxSize(n int64) { c.maxSize = n }

// Rules returns the rules in evaluation order.
func (c *Chain) Rules() []Rule {
	if c == nil {
		return nil
	}
	return c.rules
}

// Empty reports whether the chain has no rules and no size bounds.
func (c *Chain) Empty() bool {
	return c == nil || (len(c.rules) == 0 && c.minSize == 0 && c.maxSize == 0)
}

// Match reports whether the entry at relPath, relative to the tree root
// and without a leading slash, is included. Size bounds apply to files
// only.
func (c *Chain) Match(relPath string, isDir bool, size int64) bool {
	if c.Empty() {
		return true
	}
	if !isDir && !c.sizeOK(size) {
		return false
	}
	for _, r := range c.rules {
		if r.glob.match(relPath, isDir) {
			return bool(r.Action)
		}
	}
	return true
}

func (c *Chain) sizeOK(size int64) bool {
	if c.minSize > 0 && size < c.minSize {
		return false
	}
	return c.maxSize == 0 || size <= c.maxSize
}

func (c *Chain) String() string {
	if c.Empty() {
		return "none"
	}
	parts := make([]string, 0, len(c.rules)+2)
	for _, r := range c.rules {
		parts = append(parts, r.String())
	}
	if c.minSize > 0 {
		parts = append(parts, fmt.Sprintf("size>=%d", c.minSize))
	}
	if c.maxSize > 0 {
		parts = append(parts, fmt.Sprintf("size<=%d", c.maxSize))
	}
	return strings.Join(parts, ", ")
}
