package engine

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bamsammich/dirsync/internal/event"
)

// fixedTime is the mtime given to every entry written by writeTree, so
// trees built a few milliseconds apart compare equal.
var fixedTime = time.Date(2024, 3, 14, 15, 9, 26, 535897932, time.UTC)

// createTestTree populates root with a standard test tree:
//
//	root.txt          (17 bytes)
//	big.bin           (320KB)
//	sub/mid.txt       (19 bytes)
//	sub/deep/leaf.txt (17 bytes)
//	empty/            (directory)
func createTestTree(t *testing.T, root string) {
	t.Helper()
	writeTree(t, root, map[string]string{
		"root.txt":          "root file content",
		"big.bin":           strings.Repeat("ABCDEFGHIJKLMNOP", 20000),
		"sub/mid.txt":       "middle file content",
		"sub/deep/leaf.txt": "leaf file content",
		"empty/":            "",
	})
}

// writeTree creates the files in files under root. A key ending in "/"
// is a directory. Files get mode 0644, directories 0755, and every entry
// gets fixedTime as mtime.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(root, 0o755))

	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(strings.TrimSuffix(rel, "/")))
		if strings.HasSuffix(rel, "/") {
			require.NoError(t, os.MkdirAll(p, 0o755))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		require.NoError(t, os.Chmod(p, 0o644))
	}
	stampTree(t, root)
}

// stampTree sets fixedTime on every entry below root, deepest first.
func stampTree(t *testing.T, root string) {
	t.Helper()
	var paths []string
	require.NoError(t, filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root {
			paths = append(paths, path)
		}
		return nil
	}))
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	for _, p := range paths {
		require.NoError(t, os.Chtimes(p, fixedTime, fixedTime))
	}
}

// treeState maps every relative path below root to a description of its
// kind, mode, mtime and, for files, content.
type treeState map[string]string

func snapshotTree(t *testing.T, root string) treeState {
	t.Helper()
	state := treeState{}
	require.NoError(t, filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		require.NoError(t, err)
		info, err := d.Info()
		require.NoError(t, err)

		desc := info.Mode().String() + " " + info.ModTime().UTC().Format(time.RFC3339Nano)
		if d.Type().IsRegular() {
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			desc += " " + string(data)
		}
		state[filepath.ToSlash(rel)] = desc
		return nil
	}))
	return state
}

// requireSameTree asserts that dst holds the same entries as src with
// equal mode, mtime and content.
func requireSameTree(t *testing.T, src, dst string) {
	t.Helper()
	require.Equal(t, snapshotTree(t, src), snapshotTree(t, dst))
}

// syncConfig returns a Config for src and dst. parallel selects the
// worker pool with two analyzers per tree.
func syncConfig(src, dst string, parallel bool) Config {
	cfg := Config{SourceRoot: src, DestRoot: dst}
	if parallel {
		cfg.Parallel = true
		cfg.Workers = 2
	}
	return cfg
}

// bothModes runs fn once sequentially and once with workers.
func bothModes(t *testing.T, fn func(t *testing.T, parallel bool)) {
	t.Helper()
	t.Run("sequential", func(t *testing.T) { fn(t, false) })
	t.Run("parallel", func(t *testing.T) { fn(t, true) })
}

// collectEvents creates a buffered event channel that records all events.
// The getter closes the channel and waits for the drain goroutine; it may
// be called at most once.
func collectEvents(t *testing.T) (chan<- event.Event, func() []event.Event) {
	t.Helper()
	ch := make(chan event.Event, 4096)
	var collected []event.Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			collected = append(collected, ev)
		}
	}()
	var once sync.Once
	drain := func() {
		once.Do(func() { close(ch) })
		<-done
	}
	t.Cleanup(drain)
	return ch, func() []event.Event {
		drain()
		return collected
	}
}

// eventsOf returns the paths of the events of type typ, in arrival order.
func eventsOf(events []event.Event, typ event.Type) []string {
	var out []string
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev.Path)
		}
	}
	return out
}

// findTmpFiles returns any .dirsync-tmp files found under root.
func findTmpFiles(t *testing.T, root string) []string {
	t.Helper()
	var found []string
	require.NoError(t, filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasSuffix(d.Name(), ".dirsync-tmp") {
			found = append(found, path)
		}
		return nil
	}))
	return found
}

func skipIfRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
}
