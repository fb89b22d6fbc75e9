package ui

import (
	"fmt"
	"strings"

	"github.com/bamsammich/dirsync/internal/stats"
)

// completionSummary builds a final summary line from a snapshot.
// Format: done ✓  copied 1,204  dirs 17  size 2.1 GiB  avg 641 MB/s  time 3m 17s  errors 0
// A dry run reports the differences instead of the copy totals.
func completionSummary(snap stats.Snapshot, dryRun, color bool) string {
	failures := snap.Failures()

	var status string
	switch {
	case dryRun:
		status = paint(color, styleDryRun, "dry run")
	case failures > 0:
		status = paint(color, styleFailed, "done ✗")
	default:
		status = paint(color, styleOK, "done ✓")
	}

	fields := []string{status}
	field := func(label, value string) {
		fields = append(fields, paint(color, styleLabel, label)+" "+paint(color, styleNumber, value))
	}

	field("source", FormatCount(snap.SourceEntries))
	field("dest", FormatCount(snap.DestEntries))
	if dryRun {
		field("differences", FormatCount(snap.Differences))
	} else {
		field("copied", FormatCount(snap.FilesCopied))
		field("dirs", FormatCount(snap.DirsCreated))
		field("size", FormatBytes(snap.BytesCopied))
		field("avg", FormatRate(snap.Throughput()))
	}
	if snap.FilesVerified > 0 || snap.FilesVerifyFailed > 0 {
		field("verified", FormatCount(snap.FilesVerified))
	}
	field("time", FormatDuration(snap.Elapsed))
	field("errors", fmt.Sprintf("%d", failures))

	return strings.Join(fields, "  ")
}
