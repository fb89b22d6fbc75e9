package props

import (
	"crypto/md5" //nolint:gosec // G501: content fingerprint for change detection, not security
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/bamsammich/dirsync/internal/filelist"
)

// Sentinel errors. A digest failure matches both ErrDigest and ErrStat.
var (
	ErrStat            = errors.New("stat failed")
	ErrDigest          = errors.New("digest failed")
	ErrUnsupportedType = errors.New("not a regular file or directory")
)

// Algorithm names a content digest.
type Algorithm string

const (
	BLAKE3 Algorithm = "blake3"
	MD5    Algorithm = "md5"
)

// ParseAlgorithm validates an algorithm name (case-insensitive).
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case BLAKE3, MD5:
		return a, nil
	case "":
		return BLAKE3, nil
	default:
		return "", fmt.Errorf("unsupported digest algorithm %q (use blake3 or md5)", s)
	}
}

// chunkSize is the read size used while hashing.
const chunkSize = 64 * 1024

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, chunkSize)
		return &b
	},
}

// Collector stats filesystem entries and hashes regular files.
// It holds no per-call state and is safe for concurrent use.
type Collector struct {
	UseDigest bool
	Algorithm Algorithm
}

// New creates a Collector. An empty algorithm selects BLAKE3.
func New(useDigest bool, alg Algorithm) *Collector {
	if alg == "" {
		alg = BLAKE3
	}
	return &Collector{UseDigest: useDigest, Algorithm: alg}
}

// Collect builds an Entry for path. Regular files get mode, size, mtime
// and, when enabled, a digest. Directories get mode and mtime
// only; the mtime is kept for restoring, never compared.
func (c *Collector) Collect(path string) (filelist.Entry, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return filelist.Entry{}, fmt.Errorf("%w: %w", ErrStat, err)
	}

	e := filelist.Entry{
		Path:    path,
		Mode:    info.Mode() & (os.ModePerm | os.ModeSetuid | os.ModeSetgid | os.ModeSticky),
		ModTime: info.ModTime(),
	}

	switch {
	case info.Mode().IsRegular():
		e.Kind = filelist.File
		e.Size = info.Size()
		if c.UseDigest {
			d, err := c.Digest(path)
			if err != nil {
				return filelist.Entry{}, err
			}
			e.Digest = d
			e.HasDigest = true
		}
	case info.IsDir():
		e.Kind = filelist.Directory
	default:
		return filelist.Entry{}, fmt.Errorf("%w: %w: %s", ErrStat, ErrUnsupportedType, path)
	}

	return e, nil
}

// Digest streams the file at path through the configured hash in
// fixed-size chunks.
func (c *Collector) Digest(path string) (filelist.Digest, error) {
	var d filelist.Digest

	f, err := os.Open(path)
	if err != nil {
		return d, fmt.Errorf("%w: %w: open %s: %w", ErrStat, ErrDigest, path, err)
	}
	defer f.Close()

	h := c.newHash()
	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)

	if _, err := io.CopyBuffer(h, f, *bufp); err != nil {
		return d, fmt.Errorf("%w: %w: read %s: %w", ErrStat, ErrDigest, path, err)
	}

	copy(d[:], h.Sum(nil))
	return d, nil
}

func (c *Collector) newHash() hash.Hash {
	if c.Algorithm == MD5 {
		return md5.New() //nolint:gosec // G401: see import
	}
	return blake3.New()
}
