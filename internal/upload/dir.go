package upload

// dir.go processes a drop directory.
//
// Every recognised record file in the directory is uploaded. Files that
// upload cleanly move to DIR/Uploaded/; files that fail stay where they are
// and get a "NAME - failed.txt" report next to them, so fixing the file and
// deleting the report is enough to have it picked up again.

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/docstream/internal/logging"
	"github.com/JonMunkholm/docstream/internal/metrics"
	"github.com/JonMunkholm/docstream/internal/stream"
)

// UploadedDir is the sub-directory successful files are moved into.
const UploadedDir = "Uploaded"

// FailedSuffix is appended to a file's name to form its failure report.
const FailedSuffix = " - failed.txt"

// DefaultPollInterval is used by Watch when given a non-positive interval.
const DefaultPollInterval = 30 * time.Second

// DefaultMaxConcurrent bounds parallel uploads when none is configured.
const DefaultMaxConcurrent = 5

// FileError pairs a file with the reason it failed.
type FileError struct {
	File string
	Err  error
}

func (e FileError) Error() string { return fmt.Sprintf("%s: %v", e.File, e.Err) }

// Summary reports what ProcessDir did.
type Summary struct {
	Uploaded []Result
	Failed   []FileError
	Skipped  []string
}

// DirProcessor runs an Uploader over every file in a directory.
type DirProcessor struct {
	uploader      *Uploader
	maxConcurrent int
	fileTimeout   time.Duration
	metrics       *metrics.Metrics
}

// NewDirProcessor returns a processor that uploads up to maxConcurrent files
// at once, each bounded by fileTimeout (zero means no limit).
func NewDirProcessor(u *Uploader, maxConcurrent int, fileTimeout time.Duration) *DirProcessor {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &DirProcessor{
		uploader:      u,
		maxConcurrent: maxConcurrent,
		fileTimeout:   fileTimeout,
		metrics:       u.metrics,
	}
}

// ProcessDir uploads every pending file in dir. A file is pending when its
// suffix is recognised and it has no failure report yet. Upload failures are
// recorded in the summary; only filesystem errors and cancellation abort the
// run.
func (p *DirProcessor) ProcessDir(ctx context.Context, dir string) (Summary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Summary{}, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	present := make(map[string]bool, len(entries))
	for _, entry := range entries {
		present[entry.Name()] = true
	}

	var (
		summary Summary
		mu      sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrent)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !stream.Recognized(name) {
			continue
		}
		if present[name+FailedSuffix] {
			summary.Skipped = append(summary.Skipped, name)
			continue
		}

		g.Go(func() error {
			out, err := p.processFile(gctx, dir, name)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if out.uploadErr != nil {
				summary.Failed = append(summary.Failed, FileError{File: name, Err: out.uploadErr})
			} else {
				summary.Uploaded = append(summary.Uploaded, out.result)
			}
			return nil
		})
	}

	err = g.Wait()
	sort.Slice(summary.Uploaded, func(i, j int) bool { return summary.Uploaded[i].File < summary.Uploaded[j].File })
	sort.Slice(summary.Failed, func(i, j int) bool { return summary.Failed[i].File < summary.Failed[j].File })
	return summary, err
}

// fileOutcome is the result of one file. uploadErr is set when the upload
// failed and the file was reported rather than moved.
type fileOutcome struct {
	result    Result
	uploadErr error
}

// processFile uploads one file and then moves or reports it. The returned
// error is reserved for filesystem failures and cancellation.
func (p *DirProcessor) processFile(ctx context.Context, dir, name string) (fileOutcome, error) {
	if err := ctx.Err(); err != nil {
		return fileOutcome{}, fmt.Errorf("operation cancelled: %w", err)
	}

	// Sanitize filename to prevent path traversal
	safe := filepath.Base(name)
	if safe != name || strings.Contains(name, "..") {
		return fileOutcome{}, fmt.Errorf("invalid filename: %q", name)
	}
	path := filepath.Join(dir, safe)

	fileCtx := ctx
	if p.fileTimeout > 0 {
		var cancel context.CancelFunc
		fileCtx, cancel = context.WithTimeout(ctx, p.fileTimeout)
		defer cancel()
	}

	res, uploadErr := p.uploader.UploadFile(fileCtx, path)
	out := fileOutcome{result: res, uploadErr: uploadErr}
	if uploadErr != nil {
		if errors.Is(uploadErr, context.Canceled) && ctx.Err() != nil {
			return out, uploadErr
		}
		p.metrics.IncFilesProcessed(metrics.StatusFailure)
		return out, writeFailure(dir, safe, res, uploadErr)
	}

	uploaded := filepath.Join(dir, UploadedDir)
	if err := os.MkdirAll(uploaded, 0o755); err != nil {
		return out, fmt.Errorf("failed to create %s directory: %w", UploadedDir, err)
	}
	if err := os.Rename(path, filepath.Join(uploaded, safe)); err != nil {
		return out, fmt.Errorf("failed moving file %s: %w", safe, err)
	}
	p.metrics.IncFilesProcessed(metrics.StatusSuccess)
	return out, nil
}

func writeFailure(dir, name string, res Result, uploadErr error) error {
	var b strings.Builder
	fmt.Fprintf(&b, "file: %s\n", name)
	fmt.Fprintf(&b, "upload_id: %s\n", res.UploadID)
	fmt.Fprintf(&b, "time: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "records_uploaded: %d\n", res.Records)
	fmt.Fprintf(&b, "error: %v\n", uploadErr)

	path := filepath.Join(dir, name+FailedSuffix)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed writing failure file: %w", err)
	}
	return nil
}

// Watch runs ProcessDir immediately and then every interval until ctx is
// cancelled. Errors from one pass are logged and do not stop the loop.
func (p *DirProcessor) Watch(ctx context.Context, dir string, interval time.Duration) {
	log := logging.WithFields(ctx, "dir", dir)
	if interval <= 0 {
		log.Warn("invalid watch interval, using default", "interval", interval.String(), "default", DefaultPollInterval.String())
		interval = DefaultPollInterval
	}
	log.Info("directory watch started", "interval", interval.String())

	p.runPass(ctx, dir)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("directory watch stopped")
			return
		case <-ticker.C:
			p.runPass(ctx, dir)
		}
	}
}

func (p *DirProcessor) runPass(ctx context.Context, dir string) {
	log := logging.WithFields(ctx, "dir", dir)
	start := time.Now()

	summary, err := p.ProcessDir(ctx, dir)
	if err != nil && ctx.Err() == nil {
		log.Error("directory pass failed", "error", err)
	}
	for _, f := range summary.Failed {
		log.Warn("file failed", "file", f.File, "error", f.Err)
	}
	if len(summary.Uploaded)+len(summary.Failed) > 0 {
		log.Info("directory pass completed",
			"uploaded", len(summary.Uploaded),
			"failed", len(summary.Failed),
			"skipped", len(summary.Skipped),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
