// Package transfer is the client-side bulk upload executor. It turns a
// list of local files plus per-file upload targets into completed storage
// objects using a bounded worker pool over a shared cursor, with per-PUT
// linear-backoff retry. Large files go through a chunked multipart mode
// where the same pool pattern applies at the part level.
package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-media/pkg/simplemedia/storage"
)

// Config holds the executor parameters. Immutable after construction.
type Config struct {
	// FileConcurrency bounds the pool for small-file batches.
	FileConcurrency int
	// PartConcurrency bounds the pool for the parts of one large file.
	PartConcurrency int
	// MaxAttempts is the per-PUT retry ceiling.
	MaxAttempts int
	// RetryDelay is the linear backoff unit: attempt n sleeps n*RetryDelay.
	RetryDelay time.Duration
}

// DefaultConfig returns the production transfer parameters.
func DefaultConfig() Config {
	return Config{
		FileConcurrency: 6,
		PartConcurrency: 4,
		MaxAttempts:     5,
		RetryDelay:      500 * time.Millisecond,
	}
}

// LocalFile is one file to transfer.
type LocalFile struct {
	Path        string
	ContentType string
}

// PlanEntry is the upload target for one file: the reserved key and its
// presigned PUT URL.
type PlanEntry struct {
	Key string
	URL string
}

// PartTarget is one part's presigned PUT URL in a multipart session.
type PartTarget struct {
	PartNumber int32
	URL        string
}

// MultipartPlan describes a chunked transfer of one large file.
type MultipartPlan struct {
	Key      string
	UploadID string
	PartSize int64
	Parts    []PartTarget
}

// Deleter removes already-written keys when a batch aborts.
type Deleter interface {
	DeleteKeys(ctx context.Context, originalKeys, assetKeys []string) error
}

// Executor runs transfer plans.
type Executor struct {
	httpClient  *http.Client
	cfg         Config
	compensator Deleter
}

// ExecutorOption is a functional option for configuring an Executor
type ExecutorOption func(*Executor)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ExecutorOption {
	return func(e *Executor) { e.httpClient = client }
}

// WithConfig overrides the default transfer parameters
func WithConfig(cfg Config) ExecutorOption {
	return func(e *Executor) { e.cfg = cfg }
}

// WithCompensateOnAbort deletes already-written objects when the batch
// aborts, so no orphaned storage outlives a failed batch. Off by default:
// the plain behavior is fail-fast with no compensation.
func WithCompensateOnAbort(d Deleter) ExecutorOption {
	return func(e *Executor) { e.compensator = d }
}

// NewExecutor creates a transfer executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		httpClient: &http.Client{Timeout: 30 * time.Minute},
		cfg:        DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run transfers files 1:1 against plan entries and returns the keys that
// were written. Completion order is not significant; completeness is: any
// PUT exhausting its retry budget aborts the whole batch and the error
// propagates. The batch resolves only when every worker drains the shared
// cursor without error.
func (e *Executor) Run(ctx context.Context, files []LocalFile, plan []PlanEntry) ([]string, error) {
	if len(files) != len(plan) {
		return nil, fmt.Errorf("plan mismatch: %d files, %d entries", len(files), len(plan))
	}
	if len(files) == 0 {
		return nil, nil
	}

	workers := e.cfg.FileConcurrency
	if len(files) < workers {
		workers = len(files)
	}

	var (
		cursor atomic.Int64
		mu     sync.Mutex
		done   = make([]string, 0, len(files))
	)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				idx := int(cursor.Add(1)) - 1
				if idx >= len(files) {
					return nil
				}
				if err := e.putFile(gctx, files[idx], plan[idx].URL); err != nil {
					return fmt.Errorf("upload %s: %w", plan[idx].Key, err)
				}
				mu.Lock()
				done = append(done, plan[idx].Key)
				mu.Unlock()
			}
		})
	}

	if err := g.Wait(); err != nil {
		e.compensate(ctx, done)
		return nil, err
	}
	return done, nil
}

// RunMultipart transfers one large file in chunks and returns the
// completed parts sorted ascending by part number, ready for a completion
// request. No completion call is made here; the caller submits it.
func (e *Executor) RunMultipart(ctx context.Context, file LocalFile, plan MultipartPlan) ([]storage.CompletedPart, error) {
	if plan.PartSize <= 0 {
		return nil, fmt.Errorf("part size must be positive")
	}
	info, err := os.Stat(file.Path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", file.Path, err)
	}

	workers := e.cfg.PartConcurrency
	if len(plan.Parts) < workers {
		workers = len(plan.Parts)
	}

	var (
		cursor atomic.Int64
		mu     sync.Mutex
		done   = make([]storage.CompletedPart, 0, len(plan.Parts))
	)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				idx := int(cursor.Add(1)) - 1
				if idx >= len(plan.Parts) {
					return nil
				}
				target := plan.Parts[idx]
				offset := int64(target.PartNumber-1) * plan.PartSize
				length := plan.PartSize
				if rest := info.Size() - offset; rest < length {
					length = rest
				}
				etag, err := e.putPart(gctx, file, target.URL, offset, length)
				if err != nil {
					return fmt.Errorf("upload part %d of %s: %w", target.PartNumber, plan.Key, err)
				}
				mu.Lock()
				done = append(done, storage.CompletedPart{PartNumber: target.PartNumber, ETag: etag})
				mu.Unlock()
			}
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(done, func(i, j int) bool { return done[i].PartNumber < done[j].PartNumber })
	return done, nil
}

// putFile PUTs one whole file with retry. The file is reopened per attempt
// so the body is re-readable.
func (e *Executor) putFile(ctx context.Context, file LocalFile, url string) error {
	return e.withRetry(ctx, func(ctx context.Context) (string, error) {
		f, err := os.Open(file.Path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		return e.put(ctx, url, f, file.ContentType)
	})
}

// putPart PUTs one byte range with retry.
func (e *Executor) putPart(ctx context.Context, file LocalFile, url string, offset, length int64) (string, error) {
	var etag string
	err := e.withRetry(ctx, func(ctx context.Context) (string, error) {
		f, err := os.Open(file.Path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		tag, err := e.put(ctx, url, io.NewSectionReader(f, offset, length), file.ContentType)
		if err == nil {
			etag = tag
		}
		return tag, err
	})
	return etag, err
}

// withRetry runs fn up to the attempt ceiling, sleeping attempt*RetryDelay
// between tries. Every failure is treated as retriable (an expired
// presigned URL fails the same way any transient error does).
func (e *Executor) withRetry(ctx context.Context, fn func(context.Context) (string, error)) error {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt-1) * e.cfg.RetryDelay):
			}
		}
		if _, err := fn(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("exhausted %d attempts: %w", e.cfg.MaxAttempts, lastErr)
}

// put performs one blocking PUT and returns the response ETag.
func (e *Executor) put(ctx context.Context, url string, body io.Reader, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("put failed with status: %s", resp.Status)
	}
	return strings.Trim(resp.Header.Get("ETag"), "\""), nil
}

func (e *Executor) compensate(ctx context.Context, keys []string) {
	if e.compensator == nil || len(keys) == 0 {
		return
	}
	// Best effort; the batch error is what propagates.
	_ = e.compensator.DeleteKeys(ctx, keys, nil)
}
