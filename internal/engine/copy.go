package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bamsammich/dirsync/internal/event"
	"github.com/bamsammich/dirsync/internal/filelist"
	"github.com/bamsammich/dirsync/internal/platform"
	"github.com/bamsammich/dirsync/internal/stats"
)

// ErrCopy wraps a failure to bring one destination entry up to date.
var ErrCopy = errors.New("copy failed")

// copier applies a difference list to the destination tree. Files are
// written to a temporary name next to the target and renamed over it once
// their data, mode and mtime are in place.
type copier struct {
	limiter *rate.Limiter
	stats   *stats.Collector
	events  chan<- event.Event
	reason  func(*filelist.Entry) string
	touched map[string]struct{} // destination dirs whose mtime the copy changed
	srcBase string              // source root without trailing separator
	dstBase string              // destination root without trailing separator
	copied  []*filelist.Entry   // regular files copied successfully
	tmp     tmpRegistry
}

func newCopier(cfg *Config, st *stats.Collector, reason func(*filelist.Entry) string) *copier {
	c := &copier{
		stats:   st,
		events:  cfg.Events,
		reason:  reason,
		touched: make(map[string]struct{}),
		srcBase: cfg.SourceRoot[:rootPrefixLen(cfg.SourceRoot)],
		dstBase: cfg.DestRoot[:rootPrefixLen(cfg.DestRoot)],
	}
	if cfg.BWLimit > 0 {
		c.limiter = newBandwidthLimiter(cfg.BWLimit)
	}
	return c
}

func (c *copier) destPath(e *filelist.Entry) string {
	return c.dstBase + e.Rel(len(c.srcBase))
}

func (c *copier) relName(e *filelist.Entry) string {
	return strings.TrimPrefix(e.Rel(len(c.srcBase)), "/")
}

// copyAll copies every entry of diff in path order, so a directory is
// always created before its contents. Per-entry failures are logged and
// returned; only cancellation stops the loop early.
func (c *copier) copyAll(ctx context.Context, diff *filelist.List) ([]error, error) {
	var errs []error
	for e := range diff.All() {
		if err := ctx.Err(); err != nil {
			return errs, err
		}

		dstPath := c.destPath(e)
		name := c.relName(e)

		var (
			n       int64
			created bool
			err     error
		)
		if e.IsDir() {
			created, err = c.copyDir(e, dstPath)
		} else {
			n, err = c.copyFile(ctx, e, dstPath)
		}
		if err != nil {
			if ctx.Err() != nil {
				return errs, ctx.Err()
			}
			err = fmt.Errorf("%w: %s: %w", ErrCopy, name, err)
			slog.Warn("copy failed", "path", name, "error", err)
			c.stats.AddFilesFailed(1)
			emitEvent(c.events, event.Event{Type: event.FileFailed, Path: name, Error: err})
			errs = append(errs, err)
			continue
		}

		c.markTouched(dstPath, e.IsDir())
		if e.IsDir() {
			if created {
				c.stats.AddDirsCreated(1)
			}
			emitEvent(c.events, event.Event{Type: event.DirCreated, Path: name, Reason: c.reason(e)})
			continue
		}
		c.copied = append(c.copied, e)
		c.stats.AddFilesCopied(1)
		c.stats.AddBytesCopied(n)
		emitEvent(c.events, event.Event{Type: event.FileCopied, Path: name, Size: n, Reason: c.reason(e)})
	}
	return errs, nil
}

// copyDir creates dstPath, or repairs the mode of an existing directory.
// A non-directory in the way is replaced.
func (c *copier) copyDir(e *filelist.Entry, dstPath string) (bool, error) {
	info, err := os.Lstat(dstPath)
	exists := err == nil && info.IsDir()
	switch {
	case err == nil && !exists:
		if err := os.Remove(dstPath); err != nil {
			return false, fmt.Errorf("replace %s: %w", dstPath, err)
		}
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return false, fmt.Errorf("lstat %s: %w", dstPath, err)
	}

	if !exists {
		if err := os.MkdirAll(filepath.Dir(dstPath), 0o777); err != nil {
			return false, fmt.Errorf("create parent dir %s: %w", filepath.Dir(dstPath), err)
		}
		if err := os.Mkdir(dstPath, e.Mode.Perm()); err != nil {
			return false, fmt.Errorf("mkdir %s: %w", dstPath, err)
		}
	}

	// The owner keeps full access until restoreDirs applies the exact
	// source mode, so entries below can still be created.
	if err := os.Chmod(dstPath, e.Mode|0o700); err != nil {
		return !exists, fmt.Errorf("chmod dir %s: %w", dstPath, err)
	}
	return !exists, nil
}

func (c *copier) copyFile(ctx context.Context, e *filelist.Entry, dstPath string) (int64, error) {
	dir := filepath.Dir(dstPath)
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return 0, fmt.Errorf("create parent dir %s: %w", dir, err)
	}
	if info, err := os.Lstat(dstPath); err == nil && info.IsDir() {
		return 0, fmt.Errorf("%s is a directory", dstPath)
	}

	src, err := os.Open(e.Path)
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()
	srcInfo, err := src.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}

	tmpName := fmt.Sprintf(".%s.%s.dirsync-tmp", filepath.Base(dstPath), uuid.New().String()[:8])
	tmpPath := filepath.Join(dir, tmpName)

	c.tmp.add(tmpPath)
	defer func() {
		c.tmp.remove(tmpPath)
		_ = os.Remove(tmpPath) // no-op if rename succeeded
	}()

	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create tmp %s: %w", tmpPath, err)
	}

	n, err := c.copyData(ctx, src, tmp, srcInfo.Size())
	if err != nil {
		tmp.Close()
		return n, fmt.Errorf("copy data: %w", err)
	}
	if err := platform.SetMode(tmp, e.Mode); err != nil {
		tmp.Close()
		return n, err
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("close tmp %s: %w", tmpPath, err)
	}
	if err := platform.SetTimes(tmpPath, time.Now(), e.ModTime); err != nil {
		return n, err
	}
	if err := os.Rename(tmpPath, dstPath); err != nil {
		return n, fmt.Errorf("rename %s -> %s: %w", tmpPath, dstPath, err)
	}
	return n, nil
}

func (c *copier) copyData(ctx context.Context, src, dst *os.File, size int64) (int64, error) {
	if c.limiter != nil {
		return io.Copy(dst, &throttledReader{ctx: ctx, src: src, lim: c.limiter})
	}
	result, err := platform.CopyFile(platform.CopyFileParams{Src: src, Dst: dst, Size: size})
	if err == nil {
		slog.Debug("copied", "path", src.Name(), "bytes", result.BytesWritten, "method", result.Method.String())
	}
	return result.BytesWritten, err
}

// markTouched records the destination directories whose modification time
// changed because path was written: its parent chain up to, but excluding,
// the destination root, and path itself for a directory.
func (c *copier) markTouched(path string, isDir bool) {
	p := path
	if !isDir {
		p = filepath.Dir(path)
	}
	for len(p) > len(c.dstBase) && p != string(filepath.Separator) {
		c.touched[p] = struct{}{}
		p = filepath.Dir(p)
	}
}

// restoreDirs resets mode and mtime of every touched destination directory
// to its source counterpart, deepest first, so that writing into a child
// does not undo its parent's restored time.
func (c *copier) restoreDirs(src *filelist.List) {
	dirs := make([]string, 0, len(c.touched))
	for d := range c.touched {
		dirs = append(dirs, d)
	}
	// A parent sorts before all of its descendants.
	slices.Sort(dirs)
	slices.Reverse(dirs)

	for _, d := range dirs {
		se := src.Find(c.srcBase + d[len(c.dstBase):])
		if se == nil || !se.IsDir() {
			continue
		}
		if err := os.Chmod(d, se.Mode); err != nil {
			slog.Warn("restore dir mode", "path", d, "error", err)
			continue
		}
		if err := platform.SetTimes(d, time.Now(), se.ModTime); err != nil {
			slog.Warn("restore dir time", "path", d, "error", err)
		}
	}
}
