package stats

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Collector tracks sync pass statistics using lock-free atomic counters.
// Listers, analyzers and the copy phase all write to the same collector.
type Collector struct {
	startTime         time.Time
	sourceEntries     atomic.Int64
	destEntries       atomic.Int64
	entriesFailed     atomic.Int64
	differences       atomic.Int64
	filesCopied       atomic.Int64
	filesFailed       atomic.Int64
	filesSkipped      atomic.Int64
	bytesCopied       atomic.Int64
	dirsCreated       atomic.Int64
	filesVerified     atomic.Int64
	filesVerifyFailed atomic.Int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	SourceEntries     int64
	DestEntries       int64
	EntriesFailed     int64 // dropped from a list: stat or digest failure
	Differences       int64
	FilesCopied       int64
	FilesFailed       int64 // copy failures
	FilesSkipped      int64 // differences not copied in dry-run mode
	BytesCopied       int64
	DirsCreated       int64
	FilesVerified     int64
	FilesVerifyFailed int64
	Elapsed           time.Duration
}

func (c *Collector) SetListTotals(source, dest int64) {
	c.sourceEntries.Store(source)
	c.destEntries.Store(dest)
}

func (c *Collector) SetDifferences(n int64) { c.differences.Store(n) }

func (c *Collector) AddEntriesFailed(n int64)     { c.entriesFailed.Add(n) }
func (c *Collector) AddFilesCopied(n int64)       { c.filesCopied.Add(n) }
func (c *Collector) AddFilesFailed(n int64)       { c.filesFailed.Add(n) }
func (c *Collector) AddFilesSkipped(n int64)      { c.filesSkipped.Add(n) }
func (c *Collector) AddBytesCopied(n int64)       { c.bytesCopied.Add(n) }
func (c *Collector) AddDirsCreated(n int64)       { c.dirsCreated.Add(n) }
func (c *Collector) AddFilesVerified(n int64)     { c.filesVerified.Add(n) }
func (c *Collector) AddFilesVerifyFailed(n int64) { c.filesVerifyFailed.Add(n) }

// Snapshot returns a point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		SourceEntries:     c.sourceEntries.Load(),
		DestEntries:       c.destEntries.Load(),
		EntriesFailed:     c.entriesFailed.Load(),
		Differences:       c.differences.Load(),
		FilesCopied:       c.filesCopied.Load(),
		FilesFailed:       c.filesFailed.Load(),
		FilesSkipped:      c.filesSkipped.Load(),
		BytesCopied:       c.bytesCopied.Load(),
		DirsCreated:       c.dirsCreated.Load(),
		FilesVerified:     c.filesVerified.Load(),
		FilesVerifyFailed: c.filesVerifyFailed.Load(),
		Elapsed:           c.Elapsed(),
	}
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

// Failures is the number of entries that could not be listed, copied or
// verified.
func (s Snapshot) Failures() int64 {
	return s.EntriesFailed + s.FilesFailed + s.FilesVerifyFailed
}

// Throughput returns the average copy rate in bytes per second.
func (s Snapshot) Throughput() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.BytesCopied) / s.Elapsed.Seconds()
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"source=%d dest=%d diff=%d copied=%d dirs=%d failed=%d skipped=%d bytes=%d",
		s.SourceEntries, s.DestEntries, s.Differences, s.FilesCopied,
		s.DirsCreated, s.EntriesFailed+s.FilesFailed, s.FilesSkipped, s.BytesCopied,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
