package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bamsammich/dirsync/internal/event"
	"github.com/bamsammich/dirsync/internal/filelist"
	"github.com/bamsammich/dirsync/internal/mq"
	"github.com/bamsammich/dirsync/internal/props"
	"github.com/bamsammich/dirsync/internal/stats"
)

// Result is the outcome of a sync pass.
type Result struct {
	Err        error
	Difference []string // relative paths of the entries that needed a copy
	Stats      stats.Snapshot
	Fatal      bool // Err stopped the pass; otherwise it summarizes entry failures
}

// Run executes one sync pass, blocking until complete. Result.Err is a
// configuration or fatal error, or a summary of the per-entry failures.
func Run(ctx context.Context, cfg Config) Result {
	if err := cfg.Validate(); err != nil {
		return Result{Err: err, Fatal: true}
	}

	r := &runner{
		cfg:          cfg,
		stats:        cfg.Stats,
		collector:    props.New(cfg.UseDigest, cfg.Algorithm),
		srcPrefixLen: rootPrefixLen(cfg.SourceRoot),
		dstPrefixLen: rootPrefixLen(cfg.DestRoot),
	}
	if r.stats == nil {
		r.stats = stats.NewCollector()
	}
	return r.run(ctx)
}

// runner is the coordinator of one pass.
type runner struct {
	cfg          Config
	stats        *stats.Collector
	collector    *props.Collector
	errs         []error
	srcPrefixLen int
	dstPrefixLen int
	mu           sync.Mutex
}

func (r *runner) run(ctx context.Context) Result {
	src, dst, err := r.buildLists(ctx)
	if err != nil {
		return r.result(nil, err)
	}
	defer src.Clear()
	defer dst.Clear()

	r.stats.SetListTotals(int64(src.Len()), int64(dst.Len()))
	r.narrate("lists complete", "source", src.Len(), "destination", dst.Len())

	diff := Diff(src, dst, r.srcPrefixLen, r.dstPrefixLen, r.cfg.UseDigest)
	defer diff.Clear()

	r.stats.SetDifferences(int64(diff.Len()))
	emitEvent(r.cfg.Events, event.Event{Type: event.DiffComplete, Total: int64(diff.Len())})
	r.narrate("comparison complete", "differences", diff.Len())

	names := make([]string, 0, diff.Len())
	for e := range diff.All() {
		names = append(names, strings.TrimPrefix(e.Rel(r.srcPrefixLen), "/"))
	}

	reason := func(e *filelist.Entry) string {
		return diffReason(e, dst, r.srcPrefixLen, r.dstPrefixLen, r.cfg.UseDigest)
	}

	if r.cfg.DryRun {
		for e := range diff.All() {
			name := strings.TrimPrefix(e.Rel(r.srcPrefixLen), "/")
			why := reason(e)
			r.stats.AddFilesSkipped(1)
			r.narrate("would copy", "path", name, "reason", why)
			emitEvent(r.cfg.Events, event.Event{Type: event.FileSkipped, Path: name, Size: e.Size, Reason: why})
		}
		return r.result(names, nil)
	}

	c := newCopier(&r.cfg, r.stats, reason)
	defer c.tmp.cleanup()

	copyErrs, err := c.copyAll(ctx, diff)
	c.restoreDirs(src)
	r.addErrs(copyErrs...)
	if err != nil {
		return r.result(names, err)
	}
	r.narrate("copy complete", "files", len(c.copied))

	if r.cfg.Verify && len(c.copied) > 0 {
		vr := Verify(ctx, VerifyConfig{
			Collector: props.New(true, r.cfg.Algorithm),
			Events:    r.cfg.Events,
			Stats:     r.stats,
			DestPath:  c.destPath,
			Name:      c.relName,
			Workers:   r.cfg.Workers,
		}, c.copied)
		for _, verr := range vr.Errors {
			r.addErrs(verr)
		}
		r.narrate("verify complete", "verified", vr.Verified, "failed", vr.Failed)
	}

	return r.result(names, ctx.Err())
}

// buildLists produces the fully populated source and destination lists,
// sequentially or through the worker pool.
func (r *runner) buildLists(ctx context.Context) (*filelist.List, *filelist.List, error) {
	emitEvent(r.cfg.Events, event.Event{Type: event.ListStarted, Path: r.cfg.SourceRoot})
	emitEvent(r.cfg.Events, event.Event{Type: event.ListStarted, Path: r.cfg.DestRoot})

	var (
		src, dst *filelist.List
		err      error
	)
	if r.cfg.parallel() {
		r.narrate("listing in parallel", "workers", r.cfg.Workers)
		src, dst, err = r.listParallel(ctx)
	} else {
		if r.cfg.Parallel {
			slog.Debug("no workers requested, listing sequentially")
		}
		r.narrate("listing sequentially")
		src, dst, err = r.listSequential(ctx)
	}
	if err != nil {
		return nil, nil, err
	}

	emitEvent(r.cfg.Events, event.Event{Type: event.ListComplete, Path: r.cfg.SourceRoot, Total: int64(src.Len())})
	emitEvent(r.cfg.Events, event.Event{Type: event.ListComplete, Path: r.cfg.DestRoot, Total: int64(dst.Len())})
	return src, dst, nil
}

func (r *runner) listSequential(ctx context.Context) (*filelist.List, *filelist.List, error) {
	w := r.walker()
	src, err := buildList(ctx, r.cfg.SourceRoot, w, r.collector, r.entryFailed)
	if err != nil {
		return nil, nil, err
	}
	dst, err := buildList(ctx, r.cfg.DestRoot, w, r.collector, r.entryFailed)
	if err != nil {
		return nil, nil, err
	}
	return src, dst, nil
}

// listParallel spawns a lister and Workers analyzers per tree, commands
// both listers and assembles their entry streams.
func (r *runner) listParallel(ctx context.Context) (*filelist.List, *filelist.List, error) {
	bus := mq.NewBus(r.cfg.Trace)
	defer bus.Close()

	pool := NewWorkerPool(ctx, bus)
	defer func() {
		if err := pool.Shutdown(r.cfg.TerminateTimeout); err != nil {
			slog.Warn("worker shutdown", "error", err)
		}
	}()

	sides := []struct {
		lister, analyzer Role
		root             string
	}{
		{RoleSourceLister, RoleSourceAnalyzer, r.cfg.SourceRoot},
		{RoleDestLister, RoleDestAnalyzer, r.cfg.DestRoot},
	}
	for _, side := range sides {
		for range r.cfg.Workers {
			a := &analyzer{bus: bus, collector: r.collector, class: side.analyzer.Class()}
			pool.Spawn(side.analyzer, a.run)
		}
		l := newLister(bus, side.lister, side.analyzer.Class(), r.cfg.Workers, r.walker(), r.entryFailed)
		pool.Spawn(side.lister, l.run)
	}

	for _, side := range sides {
		err := bus.Send(mq.Message{To: side.lister.Class(), From: mq.Coordinator, Op: mq.AnalyzeDir, Target: side.root})
		if err != nil {
			return nil, nil, err
		}
	}

	src, dst, err := receiveLists(pool.Context(), bus)
	if err != nil {
		if werr := pool.Err(); werr != nil {
			err = werr
		}
		return nil, nil, err
	}
	return src, dst, nil
}

// listStream tracks the FileEntry stream of one lister.
type listStream struct {
	list     *filelist.List
	expected int64 // -1 until ListComplete arrives
	received int64
}

func (s *listStream) done() bool { return s.expected >= 0 && s.received == s.expected }

// receiveLists reads both lister streams off the coordinator mailbox. Each
// stream is path ordered, so entries are appended at the tail.
func receiveLists(ctx context.Context, bus *mq.Bus) (*filelist.List, *filelist.List, error) {
	streams := map[mq.Class]*listStream{
		mq.SourceLister: {list: filelist.New(), expected: -1},
		mq.DestLister:   {list: filelist.New(), expected: -1},
	}
	src, dst := streams[mq.SourceLister], streams[mq.DestLister]

	for !src.done() || !dst.done() {
		m, err := bus.Receive(ctx, mq.Coordinator, mq.ListComplete, mq.FileEntry)
		if err != nil {
			return nil, nil, err
		}
		s, ok := streams[m.From]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s from %s", mq.ErrUnexpectedMessage, m.Op, m.From)
		}

		switch m.Op {
		case mq.ListComplete:
			if s.expected >= 0 {
				return nil, nil, fmt.Errorf("%w: second ListComplete from %s", mq.ErrUnexpectedMessage, m.From)
			}
			s.expected = m.Count
		case mq.FileEntry:
			if err := s.list.AppendTail(m.Entry); err != nil {
				return nil, nil, fmt.Errorf("%w: %s: %w", mq.ErrUnexpectedMessage, m.From, err)
			}
			s.received++
		}
		if s.expected >= 0 && s.received > s.expected {
			return nil, nil, fmt.Errorf("%w: %s sent more than %d entries", mq.ErrUnexpectedMessage, m.From, s.expected)
		}
	}
	return src.list, dst.list, nil
}

func (r *runner) walker() *walker {
	return &walker{filter: r.cfg.Filter, onError: r.entryFailed}
}

// entryFailed records an entry dropped from a list. It is called from
// lister goroutines.
func (r *runner) entryFailed(path string, err error) {
	slog.Warn("entry skipped", "path", path, "error", err)
	r.stats.AddEntriesFailed(1)
	r.addErrs(fmt.Errorf("%s: %w", path, err))
}

func (r *runner) addErrs(errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, errs...)
}

// narrate logs a stage of the pass: at info level in verbose mode, debug
// otherwise.
func (r *runner) narrate(msg string, args ...any) {
	level := slog.LevelDebug
	if r.cfg.Verbose {
		level = slog.LevelInfo
	}
	slog.Log(context.Background(), level, msg, args...)
}

// result assembles the Result. A fatal error wins; otherwise the first
// per-entry error is reported with a count of the rest.
func (r *runner) result(names []string, fatal error) Result {
	res := Result{Stats: r.stats.Snapshot(), Difference: names, Err: fatal, Fatal: fatal != nil}
	if fatal != nil {
		return res
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch n := len(r.errs); {
	case n == 1:
		res.Err = r.errs[0]
	case n > 1:
		res.Err = fmt.Errorf("%w (and %d more errors)", r.errs[0], n-1)
	}
	return res
}

func emitEvent(ch chan<- event.Event, e event.Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
	}
}
