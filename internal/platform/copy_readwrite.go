package platform

import (
	"errors"
	"sync"

	"golang.org/x/sys/unix"
)

// maxChunk bounds a single kernel copy call.
const maxChunk = 1 << 30

// copyBufSize is the pread/pwrite buffer size.
const copyBufSize = 1 << 20

var copyBufs = sync.Pool{
	New: func() any {
		b := make([]byte, copyBufSize)
		return &b
	},
}

// copyReadWrite copies through user space with positional reads and
// writes, leaving both file offsets untouched.
//
//nolint:gosec // G115: fd values are small non-negative integers
func copyReadWrite(params CopyFileParams) (CopyResult, error) {
	bufp := copyBufs.Get().(*[]byte)
	defer copyBufs.Put(bufp)
	buf := *bufp

	src, dst := int(params.Src.Fd()), int(params.Dst.Fd())
	res := CopyResult{Method: ReadWrite}
	for res.BytesWritten < params.Size {
		want := int(min(params.Size-res.BytesWritten, copyBufSize))
		n, err := unix.Pread(src, buf[:want], res.BytesWritten)
		if err != nil {
			return res, err
		}
		if n == 0 {
			break
		}
		w, err := pwriteAll(dst, buf[:n], res.BytesWritten)
		res.BytesWritten += int64(w)
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

func pwriteAll(fd int, p []byte, off int64) (int, error) {
	var done int
	for done < len(p) {
		w, err := unix.Pwrite(fd, p[done:], off+int64(done))
		if err != nil {
			return done, err
		}
		done += w
	}
	return done, nil
}

// CopyReadWrite copies with pread/pwrite only, bypassing the kernel
// copy paths.
func CopyReadWrite(params CopyFileParams) (CopyResult, error) {
	return copyReadWrite(params)
}

// isFallbackErr reports whether a kernel copy failed because the
// strategy is unavailable for this pair of files.
func isFallbackErr(err error) bool {
	for _, errno := range []unix.Errno{unix.ENOSYS, unix.EXDEV, unix.EINVAL, unix.ENOTSUP, unix.EOPNOTSUPP} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
