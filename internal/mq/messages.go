package mq

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/tinylib/msgp/msgp"

	"github.com/bamsammich/dirsync/internal/filelist"
)

// ErrUnexpectedMessage is returned for frames with an unknown recipient or
// op code, or a body that cannot be decoded.
var ErrUnexpectedMessage = errors.New("unexpected message")

// Class addresses a recipient. The analyzer classes are shared by a pool:
// a message sent to them is delivered to whichever analyzer receives first.
type Class byte

const (
	Coordinator Class = iota + 1
	SourceLister
	DestLister
	SourceAnalyzers
	DestAnalyzers

	numClasses = int(DestAnalyzers) + 1
)

var classNames = [...]string{
	Coordinator:     "coordinator",
	SourceLister:    "source-lister",
	DestLister:      "dest-lister",
	SourceAnalyzers: "source-analyzers",
	DestAnalyzers:   "dest-analyzers",
}

func (c Class) String() string {
	if c.valid() {
		return classNames[c]
	}
	return fmt.Sprintf("class(%d)", byte(c))
}

func (c Class) valid() bool { return c >= Coordinator && c <= DestAnalyzers }

// OpCode tags what a message asks for or reports.
type OpCode byte

const (
	AnalyzeDir OpCode = iota + 1
	AnalyzeFile
	FileAnalyzed
	FileEntry
	ListComplete
	Terminate
	TerminateOk
)

var opNames = [...]string{
	AnalyzeDir:   "AnalyzeDir",
	AnalyzeFile:  "AnalyzeFile",
	FileAnalyzed: "FileAnalyzed",
	FileEntry:    "FileEntry",
	ListComplete: "ListComplete",
	Terminate:    "Terminate",
	TerminateOk:  "TerminateOk",
}

func (o OpCode) String() string {
	if o.valid() {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", byte(o))
}

func (o OpCode) valid() bool { return o >= AnalyzeDir && o <= TerminateOk }

// Message is the decoded form of a frame.
//
//	AnalyzeDir    Target (directory to list or to analyze)
//	AnalyzeFile   Entry (bare path), From = lister to answer
//	FileAnalyzed  Entry, Err when properties could not be collected
//	FileEntry     Entry, From = lister the stream belongs to
//	ListComplete  Count = number of FileEntry messages that follow
//	Terminate, TerminateOk carry no body fields
type Message struct {
	Target string
	Err    string
	Entry  filelist.Entry
	Count  int64
	To     Class
	From   Class
	Op     OpCode
}

// Encode serializes m into a frame.
func (m Message) Encode() (Frame, error) {
	if !m.To.valid() || !m.Op.valid() {
		return Frame{}, fmt.Errorf("%w: to=%s op=%s", ErrUnexpectedMessage, m.To, m.Op)
	}
	payload := m.body().appendMsg(nil)
	if len(payload)+FrameHeaderSize > MaxFrameSize {
		return Frame{}, ErrFrameTooLarge
	}
	return Frame{To: m.To, Op: m.Op, Payload: payload}, nil
}

// Decode rebuilds a Message from a frame. The returned message shares no
// memory with the frame payload.
func Decode(f Frame) (Message, error) {
	if !f.To.valid() || !f.Op.valid() {
		return Message{}, fmt.Errorf("%w: to=%s op=%s", ErrUnexpectedMessage, f.To, f.Op)
	}
	var b body
	if _, err := b.readMsg(f.Payload); err != nil {
		return Message{}, fmt.Errorf("%w: %s body: %w", ErrUnexpectedMessage, f.Op, err)
	}
	m := Message{
		To:     f.To,
		Op:     f.Op,
		From:   Class(b.From),
		Target: b.Target,
		Count:  b.Count,
		Err:    b.Err,
	}
	if b.HasEntry {
		m.Entry = b.Entry.toEntry()
	}
	return m, nil
}

func (m Message) body() body {
	b := body{
		From:   byte(m.From),
		Target: m.Target,
		Count:  m.Count,
		Err:    m.Err,
	}
	if m.Entry.Path != "" {
		b.HasEntry = true
		b.Entry = fromEntry(m.Entry)
	}
	return b
}

// body is the msgpack payload of every frame. Map encoding with string
// keys; unknown keys are skipped on decode.
type body struct {
	Target   string
	Err      string
	Entry    entryMsg
	Count    int64
	From     byte
	HasEntry bool
}

// noModTime marks a bare entry whose properties were not collected yet.
const noModTime = math.MinInt64

// entryMsg is the wire representation of filelist.Entry.
type entryMsg struct {
	Path      string
	Digest    []byte
	ModTime   int64 // unix nanoseconds
	Size      int64
	Mode      uint32
	Kind      uint8
	HasDigest bool
}

func fromEntry(e filelist.Entry) entryMsg {
	m := entryMsg{
		Path:      e.Path,
		ModTime:   noModTime,
		Size:      e.Size,
		Mode:      uint32(e.Mode),
		Kind:      uint8(e.Kind),
		HasDigest: e.HasDigest,
	}
	if !e.ModTime.IsZero() {
		m.ModTime = e.ModTime.UnixNano()
	}
	if e.HasDigest {
		m.Digest = e.Digest[:]
	}
	return m
}

func (m entryMsg) toEntry() filelist.Entry {
	e := filelist.Entry{
		Path:      m.Path,
		Size:      m.Size,
		Mode:      os.FileMode(m.Mode),
		Kind:      filelist.Kind(m.Kind),
		HasDigest: m.HasDigest,
	}
	if m.ModTime != noModTime {
		e.ModTime = time.Unix(0, m.ModTime)
	}
	copy(e.Digest[:], m.Digest)
	return e
}

func (b body) appendMsg(o []byte) []byte {
	n := uint32(4)
	if b.Err != "" {
		n++
	}
	if b.HasEntry {
		n++
	}
	o = msgp.AppendMapHeader(o, n)
	o = msgp.AppendString(o, "from")
	o = msgp.AppendUint8(o, b.From)
	o = msgp.AppendString(o, "target")
	o = msgp.AppendString(o, b.Target)
	o = msgp.AppendString(o, "count")
	o = msgp.AppendInt64(o, b.Count)
	o = msgp.AppendString(o, "has_entry")
	o = msgp.AppendBool(o, b.HasEntry)
	if b.Err != "" {
		o = msgp.AppendString(o, "err")
		o = msgp.AppendString(o, b.Err)
	}
	if b.HasEntry {
		o = msgp.AppendString(o, "entry")
		o = b.Entry.appendMsg(o)
	}
	return o
}

func (b *body) readMsg(bts []byte) ([]byte, error) {
	n, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, err
	}
	for range n {
		var key []byte
		key, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			return bts, err
		}
		switch string(key) {
		case "from":
			b.From, bts, err = msgp.ReadUint8Bytes(bts)
		case "target":
			b.Target, bts, err = msgp.ReadStringBytes(bts)
		case "count":
			b.Count, bts, err = msgp.ReadInt64Bytes(bts)
		case "has_entry":
			b.HasEntry, bts, err = msgp.ReadBoolBytes(bts)
		case "err":
			b.Err, bts, err = msgp.ReadStringBytes(bts)
		case "entry":
			bts, err = b.Entry.readMsg(bts)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, fmt.Errorf("field %q: %w", key, err)
		}
	}
	return bts, nil
}

func (m entryMsg) appendMsg(o []byte) []byte {
	o = msgp.AppendMapHeader(o, 7)
	o = msgp.AppendString(o, "path")
	o = msgp.AppendString(o, m.Path)
	o = msgp.AppendString(o, "kind")
	o = msgp.AppendUint8(o, m.Kind)
	o = msgp.AppendString(o, "mode")
	o = msgp.AppendUint32(o, m.Mode)
	o = msgp.AppendString(o, "size")
	o = msgp.AppendInt64(o, m.Size)
	o = msgp.AppendString(o, "mod_time")
	o = msgp.AppendInt64(o, m.ModTime)
	o = msgp.AppendString(o, "has_digest")
	o = msgp.AppendBool(o, m.HasDigest)
	o = msgp.AppendString(o, "digest")
	o = msgp.AppendBytes(o, m.Digest)
	return o
}

func (m *entryMsg) readMsg(bts []byte) ([]byte, error) {
	n, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, err
	}
	for range n {
		var key []byte
		key, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			return bts, err
		}
		switch string(key) {
		case "path":
			m.Path, bts, err = msgp.ReadStringBytes(bts)
		case "kind":
			m.Kind, bts, err = msgp.ReadUint8Bytes(bts)
		case "mode":
			m.Mode, bts, err = msgp.ReadUint32Bytes(bts)
		case "size":
			m.Size, bts, err = msgp.ReadInt64Bytes(bts)
		case "mod_time":
			m.ModTime, bts, err = msgp.ReadInt64Bytes(bts)
		case "has_digest":
			m.HasDigest, bts, err = msgp.ReadBoolBytes(bts)
		case "digest":
			m.Digest, bts, err = msgp.ReadBytesBytes(bts, nil)
			if err == nil && len(m.Digest) > filelist.DigestSize {
				err = fmt.Errorf("digest is %d bytes", len(m.Digest))
			}
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, fmt.Errorf("entry field %q: %w", key, err)
		}
	}
	if len(m.Path) > filelist.MaxPathLen {
		return bts, filelist.ErrPathTooLong
	}
	return bts, nil
}
