package mq

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// TraceWriter appends frames to a zstd-compressed log. The log is a plain
// concatenation of frames in WriteFrame format.
type TraceWriter struct {
	enc    *zstd.Encoder
	mu     sync.Mutex
	frames int64
}

// NewTraceWriter starts a trace log on w. Close must be called to flush it;
// w itself is not closed.
func NewTraceWriter(w io.Writer) (*TraceWriter, error) {
	enc, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(zstd.SpeedFastest),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	return &TraceWriter{enc: enc}, nil
}

// Write appends one frame.
func (t *TraceWriter) Write(f Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.enc == nil {
		return ErrClosed
	}
	if err := WriteFrame(t.enc, f); err != nil {
		return err
	}
	t.frames++
	return nil
}

// Frames returns the number of frames written so far.
func (t *TraceWriter) Frames() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames
}

// Close flushes the compressed stream.
func (t *TraceWriter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.enc == nil {
		return nil
	}
	err := t.enc.Close()
	t.enc = nil
	if err != nil {
		return fmt.Errorf("close trace: %w", err)
	}
	return nil
}

// ReadTrace decodes a trace log and calls fn for each message in the order
// it was sent. It stops at the first error returned by fn.
func ReadTrace(r io.Reader, fn func(Message) error) error {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("zstd decoder: %w", err)
	}
	defer dec.Close()

	for {
		f, err := ReadFrame(dec)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read trace: %w", err)
		}
		m, err := Decode(f)
		if err != nil {
			return err
		}
		if err := fn(m); err != nil {
			return err
		}
	}
}
