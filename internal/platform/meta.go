package platform

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// SetMode applies mode (permission, setuid, setgid and sticky bits) to an
// open file. Unlike creating the file with that mode it is not subject to
// the umask.
//
//nolint:gosec // G115: fd values are small non-negative integers
func SetMode(f *os.File, mode os.FileMode) error {
	if err := unix.Fchmod(int(f.Fd()), unixMode(mode)); err != nil {
		return fmt.Errorf("fchmod %s: %w", f.Name(), err)
	}
	return nil
}

// SetTimes sets the access and modification times of path with nanosecond
// precision. A symlink itself is changed, never its target.
func SetTimes(path string, atime, mtime time.Time) error {
	times := []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(mtime.UnixNano()),
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, path, times, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return fmt.Errorf("utimensat %s: %w", path, err)
	}
	return nil
}

func unixMode(mode os.FileMode) uint32 {
	m := uint32(mode.Perm())
	if mode&os.ModeSetuid != 0 {
		m |= unix.S_ISUID
	}
	if mode&os.ModeSetgid != 0 {
		m |= unix.S_ISGID
	}
	if mode&os.ModeSticky != 0 {
		m |= unix.S_ISVTX
	}
	return m
}
