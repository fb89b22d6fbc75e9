package engine

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bamsammich/dirsync/internal/event"
	"github.com/bamsammich/dirsync/internal/filter"
	"github.com/bamsammich/dirsync/internal/mq"
	"github.com/bamsammich/dirsync/internal/props"
	"github.com/bamsammich/dirsync/internal/stats"
)

// ErrInvalidConfig is returned by Validate and Run for a configuration the
// pass cannot start with.
var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultTerminateTimeout bounds the worker shutdown handshake when
// Config.TerminateTimeout is zero.
const DefaultTerminateTimeout = 30 * time.Second

// Config describes one sync pass. It is not modified by Run.
type Config struct {
	SourceRoot string
	DestRoot   string

	// Parallel selects the lister/analyzer workers. Workers is the
	// analyzer count per tree and the in-flight cap of each lister;
	// Parallel with Workers < 1 runs sequentially.
	Parallel bool
	Workers  int

	UseDigest bool
	Algorithm props.Algorithm
	DryRun    bool
	Verbose   bool
	Verify    bool

	Filter           *filter.Chain
	BWLimit          int64 // bytes per second, 0 = unlimited
	TerminateTimeout time.Duration

	Events chan<- event.Event
	Stats  *stats.Collector
	Trace  *mq.TraceWriter
}

// Validate normalizes both roots to clean absolute paths and checks that
// they are readable directories.
func (c *Config) Validate() error {
	var err error
	if c.SourceRoot, err = validateRoot("source", c.SourceRoot); err != nil {
		return err
	}
	if c.DestRoot, err = validateRoot("destination", c.DestRoot); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: worker count %d is negative", ErrInvalidConfig, c.Workers)
	}
	if c.BWLimit < 0 {
		return fmt.Errorf("%w: bandwidth limit %d is negative", ErrInvalidConfig, c.BWLimit)
	}
	if c.Algorithm, err = props.ParseAlgorithm(string(c.Algorithm)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.TerminateTimeout <= 0 {
		c.TerminateTimeout = DefaultTerminateTimeout
	}
	return nil
}

func validateRoot(name, root string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%w: %s directory is empty", ErrInvalidConfig, name)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %s %s: %w", ErrInvalidConfig, name, root, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s %s is not a directory", ErrInvalidConfig, name, abs)
	}

	d, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
	}
	defer d.Close()
	if _, err := d.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("%w: %s %s is not readable: %w", ErrInvalidConfig, name, abs, err)
	}

	return abs, nil
}

// parallel reports whether the pass uses workers.
func (c *Config) parallel() bool {
	return c.Parallel && c.Workers >= 1
}

// rootPrefixLen is the number of leading path bytes shared by every entry
// listed under root. Entry paths keep their leading slash after it.
func rootPrefixLen(root string) int {
	if root == string(filepath.Separator) {
		return 0
	}
	return len(root)
}
