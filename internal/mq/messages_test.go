package mq

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinylib/msgp/msgp"

	"github.com/bamsammich/dirsync/internal/filelist"
)

func sampleEntry() filelist.Entry {
	e := filelist.Entry{
		Path:      "/src/dir/a.txt",
		Kind:      filelist.File,
		Mode:      0o644,
		Size:      42,
		ModTime:   time.Unix(1700000000, 987654321),
		HasDigest: true,
	}
	for i := range e.Digest {
		e.Digest[i] = byte(i)
	}
	return e
}

func TestMessageRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  Message
	}{
		{
			name: "analyze dir",
			msg:  Message{To: SourceLister, From: Coordinator, Op: AnalyzeDir, Target: "/src"},
		},
		{
			name: "analyze file with bare entry",
			msg:  Message{To: DestAnalyzers, From: DestLister, Op: AnalyzeFile, Entry: filelist.Entry{Path: "/dst/x", Kind: filelist.File}},
		},
		{
			name: "file analyzed",
			msg:  Message{To: SourceLister, From: SourceAnalyzers, Op: FileAnalyzed, Entry: sampleEntry()},
		},
		{
			name: "file analyzed with error",
			msg:  Message{To: SourceLister, From: SourceAnalyzers, Op: FileAnalyzed, Entry: filelist.Entry{Path: "/src/gone"}, Err: "stat failed"},
		},
		{
			name: "list complete",
			msg:  Message{To: Coordinator, From: DestLister, Op: ListComplete, Count: 12345},
		},
		{
			name: "terminate",
			msg:  Message{To: SourceAnalyzers, From: Coordinator, Op: Terminate},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f, err := tt.msg.Encode()
			require.NoError(t, err)
			assert.Equal(t, tt.msg.To, f.To)
			assert.Equal(t, tt.msg.Op, f.Op)

			got, err := Decode(f)
			require.NoError(t, err)
			assert.Equal(t, tt.msg.To, got.To)
			assert.Equal(t, tt.msg.From, got.From)
			assert.Equal(t, tt.msg.Op, got.Op)
			assert.Equal(t, tt.msg.Target, got.Target)
			assert.Equal(t, tt.msg.Count, got.Count)
			assert.Equal(t, tt.msg.Err, got.Err)
			assert.Equal(t, tt.msg.Entry.Path, got.Entry.Path)
			assert.Equal(t, tt.msg.Entry.Kind, got.Entry.Kind)
			assert.Equal(t, tt.msg.Entry.Mode, got.Entry.Mode)
			assert.Equal(t, tt.msg.Entry.Size, got.Entry.Size)
			assert.Equal(t, tt.msg.Entry.Digest, got.Entry.Digest)
			assert.Equal(t, tt.msg.Entry.HasDigest, got.Entry.HasDigest)
			assert.True(t, tt.msg.Entry.ModTime.Equal(got.Entry.ModTime))
			assert.Equal(t, tt.msg.Entry.ModTime.IsZero(), got.Entry.ModTime.IsZero())
		})
	}
}

func TestEncodeRejectsUnknownAddress(t *testing.T) {
	t.Parallel()

	_, err := Message{To: Class(99), Op: Terminate}.Encode()
	require.ErrorIs(t, err, ErrUnexpectedMessage)

	_, err = Message{To: Coordinator, Op: OpCode(0)}.Encode()
	require.ErrorIs(t, err, ErrUnexpectedMessage)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Decode(Frame{To: Coordinator, Op: FileEntry, Payload: []byte{0xc1}})
	require.ErrorIs(t, err, ErrUnexpectedMessage)

	_, err = Decode(Frame{To: Class(0), Op: FileEntry})
	require.ErrorIs(t, err, ErrUnexpectedMessage)
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	t.Parallel()

	o := msgp.AppendMapHeader(nil, 3)
	o = msgp.AppendString(o, "target")
	o = msgp.AppendString(o, "/src")
	o = msgp.AppendString(o, "priority")
	o = msgp.AppendArrayHeader(o, 2)
	o = msgp.AppendInt(o, 1)
	o = msgp.AppendString(o, "x")
	o = msgp.AppendString(o, "count")
	o = msgp.AppendInt64(o, 3)

	m, err := Decode(Frame{To: SourceLister, Op: AnalyzeDir, Payload: o})
	require.NoError(t, err)
	assert.Equal(t, "/src", m.Target)
	assert.Equal(t, int64(3), m.Count)
}

func TestDecodeRejectsLongPath(t *testing.T) {
	t.Parallel()

	e := entryMsg{Path: "/" + strings.Repeat("a", filelist.MaxPathLen), Kind: uint8(filelist.File)}
	o := msgp.AppendMapHeader(nil, 2)
	o = msgp.AppendString(o, "has_entry")
	o = msgp.AppendBool(o, true)
	o = msgp.AppendString(o, "entry")
	o = e.appendMsg(o)

	_, err := Decode(Frame{To: Coordinator, Op: FileEntry, Payload: o})
	require.ErrorIs(t, err, ErrUnexpectedMessage)
	require.ErrorIs(t, err, filelist.ErrPathTooLong)
}

func TestDecodedEntryIsIndependent(t *testing.T) {
	t.Parallel()

	f, err := Message{To: Coordinator, Op: FileEntry, Entry: sampleEntry()}.Encode()
	require.NoError(t, err)

	got, err := Decode(f)
	require.NoError(t, err)

	want := got.Entry.Digest
	for i := range f.Payload {
		f.Payload[i] = 0
	}
	assert.Equal(t, want, got.Entry.Digest)
	assert.Equal(t, "/src/dir/a.txt", got.Entry.Path)
}

func TestClassAndOpNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "source-analyzers", SourceAnalyzers.String())
	assert.Equal(t, "class(42)", Class(42).String())
	assert.Equal(t, "TerminateOk", TerminateOk.String())
	assert.Equal(t, "op(0)", OpCode(0).String())
}

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		frame Frame
	}{
		{name: "with payload", frame: Frame{To: Coordinator, Op: FileEntry, Payload: []byte("hello")}},
		{name: "empty payload", frame: Frame{To: DestAnalyzers, Op: Terminate}},
		{name: "large payload", frame: Frame{To: SourceLister, Op: FileAnalyzed, Payload: bytes.Repeat([]byte("a"), MaxFrameSize-FrameHeaderSize)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			require.NoError(t, WriteFrame(&buf, tt.frame))

			got, err := ReadFrame(&buf)
			require.NoError(t, err)
			assert.Equal(t, tt.frame.To, got.To)
			assert.Equal(t, tt.frame.Op, got.Op)
			assert.Equal(t, len(tt.frame.Payload), len(got.Payload))
			assert.True(t, bytes.Equal(tt.frame.Payload, got.Payload))
		})
	}
}

func TestFrameOversizedRejected(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := WriteFrame(&buf, Frame{To: Coordinator, Op: FileEntry, Payload: make([]byte, MaxFrameSize)})
	require.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Zero(t, buf.Len())
}

func TestReadFrameTruncated(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, Frame{To: Coordinator, Op: FileEntry, Payload: []byte("abcdef")}))
	data := buf.Bytes()[:buf.Len()-2]

	_, err := ReadFrame(bytes.NewReader(data))
	require.Error(t, err)
}
