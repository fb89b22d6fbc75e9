package ui

import (
	"io"
	"time"

	"github.com/bamsammich/dirsync/internal/event"
	"github.com/bamsammich/dirsync/internal/stats"
)

// DefaultProgressInterval is how often the plain presenter prints a
// progress line while a pass is running.
const DefaultProgressInterval = 5 * time.Second

// Presenter consumes events and displays progress.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan event.Event) error
	// Summary returns the final summary line.
	Summary() string
}

// Config configures a Presenter.
type Config struct {
	Writer    io.Writer
	ErrWriter io.Writer
	Stats     *stats.Collector
	Interval  time.Duration
	IsTTY     bool
	Quiet     bool
	Verbose   bool
	DryRun    bool
}

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn // factory function returns interface by design
func NewPresenter(cfg Config) Presenter {
	if cfg.Quiet {
		return &quietPresenter{}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &plainPresenter{
		w:        cfg.Writer,
		errW:     cfg.ErrWriter,
		stats:    cfg.Stats,
		interval: interval,
		verbose:  cfg.Verbose,
		dryRun:   cfg.DryRun,
		color:    cfg.IsTTY,
	}
}
