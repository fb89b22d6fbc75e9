//go:build !linux

package platform

// CopyFile falls back to read/write where no kernel copy path is wired.
func CopyFile(params CopyFileParams) (CopyResult, error) {
	preallocate(params.Dst, params.Size)
	return copyReadWrite(params)
}
