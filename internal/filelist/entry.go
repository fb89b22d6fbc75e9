package filelist

import (
	"encoding/hex"
	"os"
	"time"
)

// MaxPathLen bounds the length of an entry path in bytes.
const MaxPathLen = 4096

// Kind identifies the kind of filesystem entry.
type Kind uint8

const (
	File Kind = iota + 1
	Directory
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Directory:
		return "dir"
	default:
		return "unknown"
	}
}

// DigestSize is the width of a content digest. Shorter digests (MD5) are
// stored left-aligned and zero padded.
const DigestSize = 32

// Digest is a fixed-width content hash.
type Digest [DigestSize]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Entry is a snapshot of one file or directory.
type Entry struct {
	Path      string
	ModTime   time.Time
	Size      int64 // files only
	Mode      os.FileMode
	Kind      Kind
	Digest    Digest
	HasDigest bool // set only for files when hashing was requested
}

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool { return e.Kind == Directory }

// Rel returns the part of the path after a root prefix of length
// prefixLen, or "" when the path is shorter than the prefix.
func (e *Entry) Rel(prefixLen int) string {
	if prefixLen > len(e.Path) {
		return ""
	}
	return e.Path[prefixLen:]
}
