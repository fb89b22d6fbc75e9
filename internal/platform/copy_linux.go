//go:build linux

package platform

import (
	"golang.org/x/sys/unix"
)

// kernelCopy is one in-kernel copy strategy. step moves at most chunk
// bytes and reports how many it moved; zero means the source ended.
type kernelCopy struct {
	step   func(src, dst int, chunk int) (int, error)
	method CopyMethod
}

// kernelCopies are tried in order. A strategy that fails before moving
// any data with an unsupported/cross-device error hands over to the next;
// pread/pwrite is the last resort.
var kernelCopies = []kernelCopy{
	{method: CopyFileRange, step: func(src, dst, chunk int) (int, error) {
		return unix.CopyFileRange(src, nil, dst, nil, chunk, 0)
	}},
	{method: Sendfile, step: func(src, dst, chunk int) (int, error) {
		return unix.Sendfile(dst, src, nil, chunk)
	}},
}

// CopyFile copies with the most efficient method the kernel and the
// filesystems involved support.
//
//nolint:gosec // G115: fd values are small non-negative integers
func CopyFile(params CopyFileParams) (CopyResult, error) {
	preallocate(params.Dst, params.Size)

	src, dst := int(params.Src.Fd()), int(params.Dst.Fd())
	for _, kc := range kernelCopies {
		n, err := kc.run(src, dst, params.Size)
		if err == nil || n > 0 || !isFallbackErr(err) {
			return CopyResult{BytesWritten: n, Method: kc.method}, err
		}
	}
	return copyReadWrite(params)
}

// run drives step until size bytes moved or the source ended. Both file
// offsets advance with the data, so a fallback starts from the top only
// when nothing was written.
func (kc kernelCopy) run(src, dst int, size int64) (int64, error) {
	var total int64
	for total < size {
		n, err := kc.step(src, dst, int(min(size-total, maxChunk)))
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += int64(n)
	}
	return total, nil
}
