package engine

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bamsammich/dirsync/internal/filelist"
	"github.com/bamsammich/dirsync/internal/filter"
	"github.com/bamsammich/dirsync/internal/props"
)

// walker enumerates a tree depth-first. Only regular files and
// directories are visited; the root itself is not. Unreadable
// directories and filtered entries are skipped, never fatal.
type walker struct {
	filter  *filter.Chain
	onError func(path string, err error)
}

// visitFunc is called once per entry. A non-nil error stops the walk.
type visitFunc func(path string, kind filelist.Kind) error

func (w *walker) walk(ctx context.Context, root string, visit visitFunc) error {
	return w.walkDir(ctx, root, rootPrefixLen(root), visit)
}

func (w *walker) walkDir(ctx context.Context, dir string, prefixLen int, visit visitFunc) error {
	// ReadDir returns what it could read before failing.
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.report(dir, fmt.Errorf("%w: readdir: %w", props.ErrStat, err))
	}

	for _, de := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		path := filepath.Join(dir, de.Name())
		kind, ok := kindOf(de.Type())
		if !ok {
			slog.Debug("skipping entry", "path", path, "type", de.Type().String())
			continue
		}
		if len(path) > filelist.MaxPathLen {
			w.report(path, filelist.ErrPathTooLong)
			continue
		}
		if !w.included(path[prefixLen:], de, kind) {
			slog.Debug("filtered", "path", path)
			continue
		}

		if err := visit(path, kind); err != nil {
			return err
		}
		if kind == filelist.Directory {
			if err := w.walkDir(ctx, path, prefixLen, visit); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *walker) included(rel string, de fs.DirEntry, kind filelist.Kind) bool {
	if w.filter == nil || w.filter.Empty() {
		return true
	}
	var size int64
	if kind == filelist.File {
		info, err := de.Info()
		if err != nil {
			// Gone since readdir; let the collector report it.
			return true
		}
		size = info.Size()
	}
	return w.filter.Match(strings.TrimPrefix(rel, "/"), kind == filelist.Directory, size)
}

func (w *walker) report(path string, err error) {
	if w.onError != nil {
		w.onError(path, err)
	}
}

func kindOf(t fs.FileMode) (filelist.Kind, bool) {
	switch {
	case t.IsDir():
		return filelist.Directory, true
	case t.IsRegular():
		return filelist.File, true
	default:
		return 0, false
	}
}

// buildList walks root in-process and collects every entry's properties.
// This is the sequential path; per-entry failures go to onFail.
func buildList(
	ctx context.Context,
	root string,
	w *walker,
	c *props.Collector,
	onFail func(path string, err error),
) (*filelist.List, error) {
	list := filelist.New()
	err := w.walk(ctx, root, func(path string, _ filelist.Kind) error {
		if _, err := list.Insert(path, c.Collect); err != nil {
			onFail(path, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}
