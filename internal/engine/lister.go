package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bamsammich/dirsync/internal/filelist"
	"github.com/bamsammich/dirsync/internal/mq"
)

// lister builds the entry list of one tree. It walks the tree itself and
// hands property collection to its analyzer class, keeping at most
// maxInFlight requests outstanding.
type lister struct {
	bus         *mq.Bus
	walker      *walker
	onFail      func(path string, err error)
	class       mq.Class
	analyzers   mq.Class
	maxInFlight int

	working  *filelist.List // bare entries, one per dispatched request
	complete *filelist.List // entries with properties
	inFlight int
}

func newLister(bus *mq.Bus, role Role, analyzers mq.Class, workers int, w *walker, onFail func(string, error)) *lister {
	return &lister{
		bus:         bus,
		walker:      w,
		onFail:      onFail,
		class:       role.Class(),
		analyzers:   analyzers,
		maxInFlight: max(workers, 1),
	}
}

func (l *lister) run(ctx context.Context, id int64) error {
	// AwaitDirCommand
	cmd, err := l.bus.Receive(ctx, l.class, mq.AnalyzeDir)
	if err != nil {
		return err
	}
	slog.Debug("listing", "lister", l.class.String(), "root", cmd.Target)

	l.working = filelist.New()
	l.complete = filelist.New()

	// Walking
	if err := l.walker.walk(ctx, cmd.Target, func(path string, kind filelist.Kind) error {
		return l.dispatch(ctx, path, kind)
	}); err != nil {
		return err
	}

	// Draining
	for l.inFlight > 0 {
		if err := l.collect(ctx); err != nil {
			return err
		}
	}

	// Reporting
	if err := l.report(); err != nil {
		return err
	}
	slog.Debug("list reported", "lister", l.class.String(), "entries", l.complete.Len())
	l.working.Clear()
	l.complete.Clear()

	// AwaitTerminate
	if _, err := l.bus.Receive(ctx, l.class, mq.Terminate); err != nil {
		return err
	}
	return l.bus.Send(mq.Message{To: mq.Coordinator, From: l.class, Op: mq.TerminateOk, Count: id})
}

// dispatch records a walked path and asks an analyzer for its properties,
// first waiting for a reply when the in-flight cap is reached.
func (l *lister) dispatch(ctx context.Context, path string, kind filelist.Kind) error {
	if _, added := l.working.InsertEntry(filelist.Entry{Path: path, Kind: kind}); !added {
		return nil
	}

	for l.inFlight >= l.maxInFlight {
		if err := l.collect(ctx); err != nil {
			return err
		}
	}

	m := mq.Message{To: l.analyzers, From: l.class}
	if kind == filelist.Directory {
		m.Op = mq.AnalyzeDir
		m.Target = path
	} else {
		m.Op = mq.AnalyzeFile
		m.Entry = filelist.Entry{Path: path, Kind: kind}
	}
	if err := l.bus.Send(m); err != nil {
		return err
	}
	l.inFlight++
	return nil
}

// collect waits for one FileAnalyzed reply. Replies arrive in completion
// order, so they are inserted rather than appended.
func (l *lister) collect(ctx context.Context) error {
	m, err := l.bus.Receive(ctx, l.class, mq.FileAnalyzed)
	if err != nil {
		return err
	}
	l.inFlight--

	if m.Err != "" {
		l.onFail(m.Entry.Path, errors.New(m.Err))
		return nil
	}
	if l.working.Find(m.Entry.Path) == nil {
		return fmt.Errorf("%w: reply for %q which was never requested", mq.ErrUnexpectedMessage, m.Entry.Path)
	}
	if _, added := l.complete.InsertEntry(m.Entry); !added {
		return fmt.Errorf("%w: duplicate reply for %q", mq.ErrUnexpectedMessage, m.Entry.Path)
	}
	return nil
}

// report sends ListComplete with the entry count, then every entry in
// path order.
func (l *lister) report() error {
	err := l.bus.Send(mq.Message{
		To:    mq.Coordinator,
		From:  l.class,
		Op:    mq.ListComplete,
		Count: int64(l.complete.Len()),
	})
	if err != nil {
		return err
	}
	for e := range l.complete.All() {
		if err := l.bus.Send(mq.Message{To: mq.Coordinator, From: l.class, Op: mq.FileEntry, Entry: *e}); err != nil {
			return err
		}
	}
	return nil
}
