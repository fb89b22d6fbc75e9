package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bamsammich/dirsync/internal/mq"
)

var (
	// ErrWorker wraps a fatal worker failure.
	ErrWorker = errors.New("worker failed")
	// ErrTerminationTimeout is returned when workers do not acknowledge
	// Terminate in time.
	ErrTerminationTimeout = errors.New("worker termination timed out")
)

// Role is what a worker does and for which tree.
type Role int

const (
	RoleSourceLister Role = iota + 1
	RoleDestLister
	RoleSourceAnalyzer
	RoleDestAnalyzer
)

var roleNames = [...]string{
	RoleSourceLister:   "source-lister",
	RoleDestLister:     "dest-lister",
	RoleSourceAnalyzer: "source-analyzer",
	RoleDestAnalyzer:   "dest-analyzer",
}

func (r Role) String() string {
	if r > 0 && int(r) < len(roleNames) {
		return roleNames[r]
	}
	return "unknown"
}

// Class returns the bus address workers of this role receive on.
func (r Role) Class() mq.Class {
	switch r {
	case RoleSourceLister:
		return mq.SourceLister
	case RoleDestLister:
		return mq.DestLister
	case RoleSourceAnalyzer:
		return mq.SourceAnalyzers
	case RoleDestAnalyzer:
		return mq.DestAnalyzers
	default:
		return 0
	}
}

// WorkerHandle is the coordinator's record of one running worker.
type WorkerHandle struct {
	ID    int64
	Role  Role
	Class mq.Class
}

func (h WorkerHandle) String() string {
	return fmt.Sprintf("%s#%d", h.Role, h.ID)
}

// WorkerFunc is the body of a worker. id identifies the worker in its
// TerminateOk reply.
type WorkerFunc func(ctx context.Context, id int64) error

// WorkerPool owns the workers of one pass. Workers share nothing but the
// bus. When a worker fails, the pool context is cancelled with the
// failure as its cause.
type WorkerPool struct {
	bus     *mq.Bus
	ctx     context.Context
	cancel  context.CancelCauseFunc
	handles map[int64]WorkerHandle
	wg      sync.WaitGroup
	mu      sync.Mutex
	nextID  int64
}

// NewWorkerPool creates an empty pool whose workers talk over bus.
func NewWorkerPool(ctx context.Context, bus *mq.Bus) *WorkerPool {
	pctx, cancel := context.WithCancelCause(ctx)
	return &WorkerPool{
		bus:     bus,
		ctx:     pctx,
		cancel:  cancel,
		handles: make(map[int64]WorkerHandle),
	}
}

// Context is cancelled when a worker fails or the pool shuts down.
func (p *WorkerPool) Context() context.Context { return p.ctx }

// Err returns the first worker failure, or nil. Cancellation by the
// parent context or by Shutdown is not a failure.
func (p *WorkerPool) Err() error {
	if p.ctx.Err() == nil {
		return nil
	}
	if cause := context.Cause(p.ctx); errors.Is(cause, ErrWorker) {
		return cause
	}
	return nil
}

// Spawn starts run in its own goroutine and records its handle.
func (p *WorkerPool) Spawn(role Role, run WorkerFunc) WorkerHandle {
	p.mu.Lock()
	p.nextID++
	h := WorkerHandle{ID: p.nextID, Role: role, Class: role.Class()}
	p.handles[h.ID] = h
	p.mu.Unlock()

	p.wg.Go(func() {
		err := run(p.ctx, h.ID)
		if err == nil || errors.Is(err, mq.ErrClosed) || p.ctx.Err() != nil {
			return
		}
		slog.Error("worker failed", "worker", h.String(), "error", err)
		p.cancel(fmt.Errorf("%w: %s: %w", ErrWorker, h, err))
	})
	return h
}

// Handles returns the live workers ordered by ID.
func (p *WorkerPool) Handles() []WorkerHandle {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]WorkerHandle, 0, len(p.handles))
	for _, h := range p.handles {
		out = append(out, h)
	}
	slices.SortFunc(out, func(a, b WorkerHandle) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (p *WorkerPool) release(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.handles, id)
}

func (p *WorkerPool) live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// Shutdown sends one Terminate per live worker and waits until each has
// answered TerminateOk, or until timeout. Handles are released as their
// acknowledgement arrives. Workers still running afterwards are
// cancelled and not waited for. Workers of an already cancelled pool may
// exit without acknowledging.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	defer p.cancel(context.Canceled)
	cancelled := p.ctx.Err() != nil

	handles := p.Handles()
	total := len(handles)
	for _, h := range handles {
		err := p.bus.Send(mq.Message{To: h.Class, From: mq.Coordinator, Op: mq.Terminate})
		if err != nil {
			return fmt.Errorf("terminate %s: %w", h, err)
		}
	}

	exited := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(exited)
	}()

	waitCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	go func() {
		select {
		case <-exited:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	for p.live() > 0 {
		m, err := p.bus.Receive(waitCtx, mq.Coordinator, mq.TerminateOk)
		if err != nil {
			break
		}
		p.ack(m)
	}
	// Acknowledgements queued by workers that exited meanwhile.
	for p.live() > 0 {
		m, ok, err := p.bus.TryReceive(mq.Coordinator, mq.TerminateOk)
		if err != nil || !ok {
			break
		}
		p.ack(m)
	}

	n := p.live()
	if n == 0 {
		return nil
	}
	select {
	case <-exited:
		if cancelled {
			slog.Debug("workers exited on cancellation", "unacknowledged", n, "total", total)
			return nil
		}
		return fmt.Errorf("%w: %d of %d workers exited without acknowledging terminate", ErrWorker, n, total)
	default:
		return fmt.Errorf("%w: %d of %d workers after %s: %v", ErrTerminationTimeout, n, total, timeout, p.Handles())
	}
}

func (p *WorkerPool) ack(m mq.Message) {
	slog.Debug("worker terminated", "class", m.From.String(), "id", m.Count)
	p.release(m.Count)
}
