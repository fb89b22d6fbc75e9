package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bamsammich/dirsync/internal/event"
	"github.com/bamsammich/dirsync/internal/filelist"
	"github.com/bamsammich/dirsync/internal/props"
	"github.com/bamsammich/dirsync/internal/stats"
)

// ErrVerify is returned for a copied file whose destination content does
// not hash to the same digest as its source.
var ErrVerify = errors.New("verification failed")

// VerifyConfig controls the post-copy verification pass.
type VerifyConfig struct {
	Collector *props.Collector
	Events    chan<- event.Event
	Stats     *stats.Collector
	// DestPath maps a source entry to its destination path.
	DestPath func(*filelist.Entry) string
	// Name maps a source entry to the relative name used in reports.
	Name    func(*filelist.Entry) string
	Workers int
}

// VerifyResult holds the outcome of a verification pass.
type VerifyResult struct {
	Errors   []VerifyError
	Verified int64
	Failed   int64
}

// VerifyError records a single checksum mismatch or unreadable file.
type VerifyError struct {
	Err     error
	Path    string
	SrcHash string
	DstHash string
}

func (e VerifyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrVerify, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s: source %s, destination %s", ErrVerify, e.Path, e.SrcHash, e.DstHash)
}

func (e VerifyError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrVerify, e.Err}
	}
	return []error{ErrVerify}
}

// Verify re-reads each copied file on both sides and compares digests. It
// fans out to cfg.Workers goroutines.
func Verify(ctx context.Context, cfg VerifyConfig, files []*filelist.Entry) VerifyResult {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	taskCh := make(chan *filelist.Entry, workers*2)
	var mu sync.Mutex
	var result VerifyResult
	var wg sync.WaitGroup

	for range workers {
		wg.Go(func() {
			for e := range taskCh {
				if ctx.Err() != nil {
					continue
				}
				verr, ok := verifyOne(cfg, e)

				mu.Lock()
				if ok {
					result.Verified++
				} else {
					result.Failed++
					result.Errors = append(result.Errors, verr)
				}
				mu.Unlock()

				name := cfg.Name(e)
				if ok {
					cfg.Stats.AddFilesVerified(1)
					emitEvent(cfg.Events, event.Event{Type: event.VerifyOK, Path: name, Size: e.Size})
					continue
				}
				slog.Warn("verify failed", "path", name, "error", verr)
				cfg.Stats.AddFilesVerifyFailed(1)
				emitEvent(cfg.Events, event.Event{Type: event.VerifyFailed, Path: name, Error: verr})
			}
		})
	}

feed:
	for _, e := range files {
		select {
		case <-ctx.Done():
			break feed
		case taskCh <- e:
		}
	}
	close(taskCh)
	wg.Wait()

	return result
}

func verifyOne(cfg VerifyConfig, e *filelist.Entry) (VerifyError, bool) {
	verr := VerifyError{Path: cfg.Name(e)}

	srcHash, err := cfg.Collector.Digest(e.Path)
	if err != nil {
		verr.Err = err
		return verr, false
	}
	dstHash, err := cfg.Collector.Digest(cfg.DestPath(e))
	if err != nil {
		verr.Err = err
		return verr, false
	}
	if srcHash != dstHash {
		verr.SrcHash = srcHash.String()
		verr.DstHash = dstHash.String()
		return verr, false
	}
	return VerifyError{}, true
}
