package engine

import (
	"context"
	"fmt"

	"github.com/bamsammich/dirsync/internal/filelist"
	"github.com/bamsammich/dirsync/internal/mq"
	"github.com/bamsammich/dirsync/internal/props"
)

// analyzerOps is the receive priority of an analyzer: Terminate before
// any work.
var analyzerOps = []mq.OpCode{mq.Terminate, mq.AnalyzeDir, mq.AnalyzeFile}

// analyzer is a stateless worker that collects properties for the paths it
// is sent. Any analyzer of a class can serve any request of that class.
type analyzer struct {
	bus       *mq.Bus
	collector *props.Collector
	class     mq.Class
}

func (a *analyzer) run(ctx context.Context, id int64) error {
	for {
		m, err := a.bus.Receive(ctx, a.class, analyzerOps...)
		if err != nil {
			return err
		}

		var path string
		switch m.Op {
		case mq.Terminate:
			return a.bus.Send(mq.Message{To: mq.Coordinator, From: a.class, Op: mq.TerminateOk, Count: id})
		case mq.AnalyzeDir:
			path = m.Target
		case mq.AnalyzeFile:
			path = m.Entry.Path
		}

		if path == "" || (m.From != mq.SourceLister && m.From != mq.DestLister) {
			return fmt.Errorf("%w: %s from %s", mq.ErrUnexpectedMessage, m.Op, m.From)
		}
		if err := a.bus.Send(a.analyze(m.From, path)); err != nil {
			return err
		}
	}
}

func (a *analyzer) analyze(replyTo mq.Class, path string) mq.Message {
	reply := mq.Message{To: replyTo, From: a.class, Op: mq.FileAnalyzed}
	e, err := a.collector.Collect(path)
	if err != nil {
		reply.Entry = filelist.Entry{Path: path}
		reply.Err = err.Error()
		return reply
	}
	reply.Entry = e
	return reply
}
