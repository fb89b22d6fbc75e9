package filelist

import (
	"errors"
	"fmt"
	"iter"
	"sort"
)

// ErrOutOfOrder is returned by AppendTail when the entry would break the
// path ordering of the list.
var ErrOutOfOrder = errors.New("entry out of order")

// ErrPathTooLong is returned when a path exceeds MaxPathLen.
var ErrPathTooLong = errors.New("path too long")

// StatFunc builds an Entry for a path. props.Collector.Collect satisfies it.
type StatFunc func(path string) (Entry, error)

// List is a path-ordered, duplicate-free sequence of entries. It is not
// safe for concurrent use; a list belongs to exactly one component at a
// time.
type List struct {
	entries []*Entry
}

// New creates an empty list.
func New() *List {
	return &List{}
}

// Len returns the number of entries.
func (l *List) Len() int { return len(l.entries) }

// At returns the i-th entry in path order.
func (l *List) At(i int) *Entry { return l.entries[i] }

// All iterates over the entries in path order.
func (l *List) All() iter.Seq[*Entry] {
	return func(yield func(*Entry) bool) {
		for _, e := range l.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Paths returns every entry path in order.
func (l *List) Paths() []string {
	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Path
	}
	return out
}

// Clear releases all entries.
func (l *List) Clear() {
	clear(l.entries)
	l.entries = l.entries[:0]
}

// search returns the index of the first entry whose path is >= path.
func (l *List) search(path string) int {
	return sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].Path >= path
	})
}

// Find returns the entry with exactly this path, or nil.
func (l *List) Find(path string) *Entry {
	i := l.search(path)
	if i < len(l.entries) && l.entries[i].Path == path {
		return l.entries[i]
	}
	return nil
}

// Insert stats path and inserts the resulting entry at its ordered
// position. It returns (nil, err) when stat fails and (nil, nil) when the
// path is already present; the list is left unchanged in both cases.
func (l *List) Insert(path string, stat StatFunc) (*Entry, error) {
	if len(path) > MaxPathLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPathTooLong, len(path))
	}
	if l.Find(path) != nil {
		return nil, nil
	}
	e, err := stat(path)
	if err != nil {
		return nil, err
	}
	e.Path = path
	added, _ := l.InsertEntry(e)
	return added, nil
}

// InsertEntry inserts a copy of e at its ordered position. It reports
// false, and returns nil, when an entry with the same path already exists.
func (l *List) InsertEntry(e Entry) (*Entry, bool) {
	i := l.search(e.Path)
	if i < len(l.entries) && l.entries[i].Path == e.Path {
		return nil, false
	}
	added := &e
	l.entries = append(l.entries, nil)
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = added
	return added, true
}

// AppendTail appends e after the current tail. The caller guarantees
// sorted input; an entry that is not strictly greater than the tail is
// rejected with ErrOutOfOrder.
func (l *List) AppendTail(e Entry) error {
	if n := len(l.entries); n > 0 && l.entries[n-1].Path >= e.Path {
		return fmt.Errorf("%w: %s after %s", ErrOutOfOrder, e.Path, l.entries[n-1].Path)
	}
	l.entries = append(l.entries, &e)
	return nil
}

// FindByRelativePath looks up the entry whose path, with its first
// entryPrefixLen bytes removed, equals fullPath with its first
// pathPrefixLen bytes removed. This matches the same relative name across
// two trees rooted at different absolute prefixes. Only exact relative
// path equality matches.
//
// All entries of a list share their root prefix, so ordering by full path
// equals ordering by relative path and the lookup is a binary search.
func (l *List) FindByRelativePath(fullPath string, entryPrefixLen, pathPrefixLen int) *Entry {
	if len(l.entries) == 0 || pathPrefixLen > len(fullPath) {
		return nil
	}
	rel := fullPath[pathPrefixLen:]

	first := l.entries[0]
	if entryPrefixLen > len(first.Path) {
		return nil
	}
	key := first.Path[:entryPrefixLen] + rel

	i := l.search(key)
	if i < len(l.entries) && l.entries[i].Path == key {
		return l.entries[i]
	}
	return nil
}
