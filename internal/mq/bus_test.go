package mq

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/dirsync/internal/filelist"
)

func TestBusOrderWithinClass(t *testing.T) {
	t.Parallel()

	b := NewBus(nil)
	defer b.Close()

	for _, p := range []string{"/a", "/b", "/c"} {
		require.NoError(t, b.Send(Message{To: Coordinator, Op: FileEntry, Entry: filelist.Entry{Path: p}}))
	}
	require.Equal(t, 3, b.Pending(Coordinator))

	ctx := context.Background()
	for _, want := range []string{"/a", "/b", "/c"} {
		m, err := b.Receive(ctx, Coordinator, FileEntry)
		require.NoError(t, err)
		assert.Equal(t, want, m.Entry.Path)
	}
	assert.Zero(t, b.Pending(Coordinator))
}

func TestBusClassesAreSeparate(t *testing.T) {
	t.Parallel()

	b := NewBus(nil)
	defer b.Close()

	require.NoError(t, b.Send(Message{To: SourceLister, Op: AnalyzeDir, Target: "/src"}))

	_, ok, err := b.TryReceive(DestLister)
	require.NoError(t, err)
	assert.False(t, ok)

	m, ok, err := b.TryReceive(SourceLister)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/src", m.Target)
}

func TestBusPriority(t *testing.T) {
	t.Parallel()

	b := NewBus(nil)
	defer b.Close()

	require.NoError(t, b.Send(Message{To: SourceAnalyzers, Op: AnalyzeFile, Entry: filelist.Entry{Path: "/1"}}))
	require.NoError(t, b.Send(Message{To: SourceAnalyzers, Op: AnalyzeDir, Target: "/d"}))
	require.NoError(t, b.Send(Message{To: SourceAnalyzers, Op: Terminate}))

	ctx := context.Background()
	order := []OpCode{Terminate, AnalyzeDir, AnalyzeFile}

	m, err := b.Receive(ctx, SourceAnalyzers, order...)
	require.NoError(t, err)
	assert.Equal(t, Terminate, m.Op)

	m, err = b.Receive(ctx, SourceAnalyzers, order...)
	require.NoError(t, err)
	assert.Equal(t, AnalyzeDir, m.Op)

	m, err = b.Receive(ctx, SourceAnalyzers, order...)
	require.NoError(t, err)
	assert.Equal(t, AnalyzeFile, m.Op)
}

func TestBusFilterLeavesOtherOpsQueued(t *testing.T) {
	t.Parallel()

	b := NewBus(nil)
	defer b.Close()

	require.NoError(t, b.Send(Message{To: DestLister, Op: Terminate}))

	_, ok, err := b.TryReceive(DestLister, FileAnalyzed)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, b.Pending(DestLister))
}

func TestBusReceiveBlocksUntilSend(t *testing.T) {
	t.Parallel()

	b := NewBus(nil)
	defer b.Close()

	got := make(chan Message, 1)
	go func() {
		m, err := b.Receive(context.Background(), Coordinator, TerminateOk)
		if err == nil {
			got <- m
		}
	}()

	// Unrelated traffic must not satisfy the receive.
	require.NoError(t, b.Send(Message{To: Coordinator, Op: FileEntry, Entry: filelist.Entry{Path: "/x"}}))
	select {
	case <-got:
		t.Fatal("receive returned for a filtered op")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, b.Send(Message{To: Coordinator, From: SourceLister, Op: TerminateOk}))
	select {
	case m := <-got:
		assert.Equal(t, SourceLister, m.From)
	case <-time.After(5 * time.Second):
		t.Fatal("receive did not wake up")
	}
}

func TestBusManyReceiversEachMessageOnce(t *testing.T) {
	t.Parallel()

	b := NewBus(nil)
	defer b.Close()

	const n = 200
	var (
		mu   sync.Mutex
		seen = make(map[int64]int)
		wg   sync.WaitGroup
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for range 4 {
		wg.Go(func() {
			for {
				m, err := b.Receive(ctx, DestAnalyzers, AnalyzeFile)
				if err != nil {
					return
				}
				mu.Lock()
				seen[m.Count]++
				done := len(seen) == n
				mu.Unlock()
				if done {
					cancel()
				}
			}
		})
	}

	for i := range n {
		require.NoError(t, b.Send(Message{To: DestAnalyzers, Op: AnalyzeFile, Count: int64(i)}))
	}
	wg.Wait()

	assert.Len(t, seen, n)
	for k, v := range seen {
		assert.Equal(t, 1, v, "message %d delivered %d times", k, v)
	}
}

func TestBusContextCancel(t *testing.T) {
	t.Parallel()

	b := NewBus(nil)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := b.Receive(ctx, Coordinator)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBusClose(t *testing.T) {
	t.Parallel()

	b := NewBus(nil)
	require.NoError(t, b.Send(Message{To: Coordinator, Op: ListComplete}))

	errCh := make(chan error, 1)
	go func() {
		_, err := b.Receive(context.Background(), SourceLister)
		errCh <- err
	}()

	b.Close()
	b.Close()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("receiver not released by Close")
	}

	require.ErrorIs(t, b.Send(Message{To: Coordinator, Op: ListComplete}), ErrClosed)
	_, _, err := b.TryReceive(Coordinator)
	require.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, b.Pending(Coordinator))
}

func TestBusRejectsInvalidClass(t *testing.T) {
	t.Parallel()

	b := NewBus(nil)
	defer b.Close()

	_, err := b.Receive(context.Background(), Class(0))
	require.ErrorIs(t, err, ErrUnexpectedMessage)
	require.ErrorIs(t, b.Send(Message{To: Class(7), Op: Terminate}), ErrUnexpectedMessage)
}

func TestTraceRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	tw, err := NewTraceWriter(&buf)
	require.NoError(t, err)

	b := NewBus(tw)
	sent := []Message{
		{To: SourceLister, From: Coordinator, Op: AnalyzeDir, Target: "/src"},
		{To: SourceAnalyzers, From: SourceLister, Op: AnalyzeFile, Entry: filelist.Entry{Path: "/src/a", Kind: filelist.File}},
		{To: SourceLister, From: SourceAnalyzers, Op: FileAnalyzed, Entry: sampleEntry()},
		{To: Coordinator, From: SourceLister, Op: ListComplete, Count: 1},
	}
	for _, m := range sent {
		require.NoError(t, b.Send(m))
	}
	b.Close()
	assert.Equal(t, int64(len(sent)), tw.Frames())
	require.NoError(t, tw.Close())
	require.NoError(t, tw.Close())

	var got []Message
	require.NoError(t, ReadTrace(&buf, func(m Message) error {
		got = append(got, m)
		return nil
	}))

	require.Len(t, got, len(sent))
	for i := range sent {
		assert.Equal(t, sent[i].Op, got[i].Op)
		assert.Equal(t, sent[i].To, got[i].To)
		assert.Equal(t, sent[i].From, got[i].From)
		assert.Equal(t, sent[i].Entry.Path, got[i].Entry.Path)
	}
}

func TestTraceStopsOnCallbackError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	tw, err := NewTraceWriter(&buf)
	require.NoError(t, err)
	for range 3 {
		f, err := Message{To: Coordinator, Op: TerminateOk}.Encode()
		require.NoError(t, err)
		require.NoError(t, tw.Write(f))
	}
	require.NoError(t, tw.Close())
	require.ErrorIs(t, tw.Write(Frame{To: Coordinator, Op: TerminateOk}), ErrClosed)

	stop := errors.New("stop")
	calls := 0
	err = ReadTrace(&buf, func(Message) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
