package engine

import (
	"log/slog"

	"github.com/bamsammich/dirsync/internal/filelist"
)

// Mismatch reports whether dst is out of date with respect to src: true
// unless modification time (seconds and nanoseconds), size, kind, mode and,
// when useDigest is set, the content digest are all equal. Directories
// compare by kind and mode only.
func Mismatch(src, dst *filelist.Entry, useDigest bool) bool {
	return MismatchReason(src, dst, useDigest) != ""
}

// MismatchReason names the first field in which src and dst differ, or
// returns "" when they match.
func MismatchReason(src, dst *filelist.Entry, useDigest bool) string {
	switch {
	case src.Kind != dst.Kind:
		return "kind"
	case src.Kind == filelist.Directory:
		if src.Mode != dst.Mode {
			return "mode"
		}
		return ""
	case src.ModTime.Unix() != dst.ModTime.Unix():
		return "mtime"
	case src.ModTime.Nanosecond() != dst.ModTime.Nanosecond():
		return "mtime-nsec"
	case src.Size != dst.Size:
		return "size"
	case src.Mode != dst.Mode:
		return "mode"
	case useDigest && (src.HasDigest != dst.HasDigest || src.Digest != dst.Digest):
		return "digest"
	default:
		return ""
	}
}

// Diff returns the source entries that must be copied, in path order:
// those absent from dst and those that mismatch their dst counterpart.
// srcPrefixLen and dstPrefixLen are the root prefix lengths of the two
// lists.
func Diff(src, dst *filelist.List, srcPrefixLen, dstPrefixLen int, useDigest bool) *filelist.List {
	diff := filelist.New()
	for e := range src.All() {
		reason := diffReason(e, dst, srcPrefixLen, dstPrefixLen, useDigest)
		if reason == "" {
			continue
		}
		slog.Debug("difference", "path", e.Rel(srcPrefixLen), "reason", reason)
		if err := diff.AppendTail(*e); err != nil {
			diff.InsertEntry(*e)
		}
	}
	return diff
}

// diffReason is MismatchReason for an entry that may be missing from dst.
func diffReason(e *filelist.Entry, dst *filelist.List, srcPrefixLen, dstPrefixLen int, useDigest bool) string {
	d := dst.FindByRelativePath(e.Path, dstPrefixLen, srcPrefixLen)
	if d == nil {
		return "new"
	}
	return MismatchReason(e, d, useDigest)
}
