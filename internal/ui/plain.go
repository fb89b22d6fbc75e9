package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/dirsync/internal/event"
	"github.com/bamsammich/dirsync/internal/stats"
)

// plainPresenter prints one line per copied entry to stdout when verbose,
// every failure to stderr, and periodic progress to stderr.
type plainPresenter struct {
	w        io.Writer
	errW     io.Writer
	stats    *stats.Collector
	interval time.Duration
	verbose  bool
	dryRun   bool
	color    bool

	lastCopied int64
}

func (p *plainPresenter) Run(events <-chan event.Event) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-ticker.C:
			p.printProgress()
		}
	}
}

func (p *plainPresenter) handleEvent(ev event.Event) {
	switch ev.Type {
	case event.ListStarted:
		if p.verbose {
			fmt.Fprintf(p.w, "listing %s\n", ev.Path)
		}
	case event.ListComplete:
		if p.verbose {
			fmt.Fprintf(p.w, "listed %s: %s entries\n", ev.Path, FormatCount(ev.Total))
		}
	case event.DiffComplete:
		if p.verbose {
			fmt.Fprintf(p.w, "%s differences\n", FormatCount(ev.Total))
		}
	case event.FileCopied:
		if p.verbose {
			fmt.Fprintf(p.w, "%s  %s  %s\n", ev.Path, FormatBytes(ev.Size), ev.Reason)
		}
	case event.DirCreated:
		if p.verbose {
			fmt.Fprintf(p.w, "%s/  created\n", ev.Path)
		}
	case event.FileSkipped:
		fmt.Fprintf(p.w, "would copy: %s  %s\n", ev.Path, ev.Reason)
	case event.FileFailed:
		errMsg := "error"
		if ev.Error != nil {
			errMsg = ev.Error.Error()
		}
		fmt.Fprintf(p.errW, "%s  %s\n", paint(p.color, styleErrPath, ev.Path), errMsg)
	case event.VerifyFailed:
		fmt.Fprintf(p.errW, "MISMATCH: %s\n", paint(p.color, styleErrPath, ev.Path))
	case event.VerifyOK:
		// silent in plain mode
	}
}

// printProgress writes a progress line when the copy phase advanced since
// the previous tick.
func (p *plainPresenter) printProgress() {
	if p.stats == nil || p.dryRun {
		return
	}
	snap := p.stats.Snapshot()
	if snap.FilesCopied == p.lastCopied {
		return
	}
	p.lastCopied = snap.FilesCopied
	fmt.Fprintf(p.errW, "progress: %s/%s entries %s %s\n",
		FormatCount(snap.FilesCopied+snap.DirsCreated+snap.FilesFailed),
		FormatCount(snap.Differences),
		FormatBytes(snap.BytesCopied),
		FormatRate(snap.Throughput()),
	)
}

func (p *plainPresenter) Summary() string {
	if p.stats == nil {
		return ""
	}
	return completionSummary(p.stats.Snapshot(), p.dryRun, p.color)
}
