package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrClosed is returned by every Bus operation after Close.
var ErrClosed = errors.New("bus closed")

// Bus delivers messages to recipient classes. Each class has its own FIFO
// mailbox; any number of goroutines may send to or receive from a class.
// Messages are encoded to frames on Send and decoded on receive, so sender
// and receiver never share memory.
type Bus struct {
	trace  *TraceWriter
	done   chan struct{}
	boxes  [numClasses][]Frame
	wake   [numClasses]chan struct{}
	mu     sync.Mutex
	closed bool
}

// NewBus creates an empty bus. When trace is non-nil every frame sent is
// also appended to it.
func NewBus(trace *TraceWriter) *Bus {
	b := &Bus{
		trace: trace,
		done:  make(chan struct{}),
	}
	for i := range b.wake {
		b.wake[i] = make(chan struct{})
	}
	return b
}

// Send encodes m and queues it on the mailbox of m.To.
func (b *Bus) Send(m Message) error {
	f, err := m.Encode()
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.trace != nil {
		if err := b.trace.Write(f); err != nil {
			slog.Warn("trace disabled", "error", err)
			b.trace = nil
		}
	}
	b.boxes[f.To] = append(b.boxes[f.To], f)

	// Wake every receiver parked on this class; the ones that find
	// nothing for them park again.
	close(b.wake[f.To])
	b.wake[f.To] = make(chan struct{})
	return nil
}

// Receive blocks until a message for class whose op is one of ops is
// queued, then removes and returns it. ops is a priority order: when
// several matching messages are queued, the oldest one with the earliest
// listed op wins. With no ops any message matches.
func (b *Bus) Receive(ctx context.Context, class Class, ops ...OpCode) (Message, error) {
	if !class.valid() {
		return Message{}, fmt.Errorf("%w: receive on %s", ErrUnexpectedMessage, class)
	}
	for {
		f, ok, wake, err := b.take(class, ops)
		if err != nil {
			return Message{}, err
		}
		if ok {
			return Decode(f)
		}

		select {
		case <-wake:
		case <-b.done:
			return Message{}, ErrClosed
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// TryReceive is the non-blocking form of Receive. It reports false when
// nothing matching is queued.
func (b *Bus) TryReceive(class Class, ops ...OpCode) (Message, bool, error) {
	if !class.valid() {
		return Message{}, false, fmt.Errorf("%w: receive on %s", ErrUnexpectedMessage, class)
	}
	f, ok, _, err := b.take(class, ops)
	if err != nil || !ok {
		return Message{}, false, err
	}
	m, err := Decode(f)
	if err != nil {
		return Message{}, false, err
	}
	return m, true, nil
}

// Pending returns the number of messages queued for class.
func (b *Bus) Pending(class Class) int {
	if !class.valid() {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.boxes[class])
}

// Close drops all queued messages and unblocks every receiver. It is safe
// to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for i := range b.boxes {
		b.boxes[i] = nil
	}
	close(b.done)
}

// take removes the first frame matching ops from the mailbox of class. When
// none matches it returns the channel that the next Send to class closes.
func (b *Bus) take(class Class, ops []OpCode) (Frame, bool, <-chan struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return Frame{}, false, nil, ErrClosed
	}

	box := b.boxes[class]
	idx := -1
	if len(ops) == 0 {
		if len(box) > 0 {
			idx = 0
		}
	} else {
	search:
		for _, op := range ops {
			for i := range box {
				if box[i].Op == op {
					idx = i
					break search
				}
			}
		}
	}

	if idx < 0 {
		return Frame{}, false, b.wake[class], nil
	}

	f := box[idx]
	copy(box[idx:], box[idx+1:])
	box[len(box)-1] = Frame{}
	b.boxes[class] = box[:len(box)-1]
	return f, true, nil, nil
}
