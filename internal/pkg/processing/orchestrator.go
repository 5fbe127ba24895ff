package processing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clearaudio/gateway/internal/pkg/blobstore"
	"github.com/clearaudio/gateway/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/errgroup"
)

// Orchestrator runs one processing job against the upstream model with
// bounded retries and re-hosts the outputs in our blob storage.
type Orchestrator struct {
	upstream    Separator
	fetcher     Fetcher
	blobs       blobstore.Store
	maxAttempts int
	baseDelay   time.Duration
	deadline    time.Duration
}

func NewOrchestrator(upstream Separator, fetcher Fetcher, blobs blobstore.Store, cfg Config) *Orchestrator {
	d := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = d.BaseDelay
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = d.Deadline
	}
	return &Orchestrator{
		upstream:    upstream,
		fetcher:     fetcher,
		blobs:       blobs,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		deadline:    cfg.Deadline,
	}
}

// Validate normalizes and validates a job without calling upstream.
func (o *Orchestrator) Validate(in JobInput) (JobInput, error) {
	return Normalize(in)
}

// RunProcessingJob calls upstream up to maxAttempts times, waiting
// baseDelay*2^(attempt-1) between retryable failures. All attempts, waits
// and output transfers share one deadline. Every error is a *JobError.
func (o *Orchestrator) RunProcessingJob(ctx context.Context, in JobInput) (*JobOutput, error) {
	start := time.Now()
	out, err := o.run(ctx, in)
	outcome := "success"
	if err != nil {
		outcome = string(KindOf(err))
	}
	metrics.ObserveJob(outcome, time.Since(start))
	return out, err
}

func (o *Orchestrator) run(ctx context.Context, in JobInput) (*JobOutput, error) {
	in, err := Normalize(in)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	req := buildRequest(in)
	log.Infof("[Processing] job start: tier=%s acceleration=%s predict_spans=%t reranking=%d",
		in.Tier, req.Acceleration, req.PredictSpans, req.RerankingCandidates)

	res, attempts, err := o.callWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &Result{}
	}
	if res.TargetURL == "" || res.ResidualURL == "" {
		return nil, &JobError{
			Kind:     KindIncomplete,
			Attempts: attempts,
			Err:      fmt.Errorf("missing output url (target=%q residual=%q)", res.TargetURL, res.ResidualURL),
		}
	}

	targetURL, residualURL, err := o.rehost(ctx, res)
	if err != nil {
		return nil, err
	}
	return &JobOutput{
		TargetURL:   targetURL,
		ResidualURL: residualURL,
		SampleRate:  res.SampleRate,
		Duration:    res.Duration,
		Attempts:    attempts,
	}, nil
}

func (o *Orchestrator) callWithRetry(ctx context.Context, req Request) (*Result, int, error) {
	var lastErr error
	attempt := 0
	for attempt < o.maxAttempts {
		attempt++
		if ctx.Err() != nil {
			return nil, attempt - 1, timeoutErr(attempt-1, lastErr)
		}

		res, err := o.upstream.Separate(ctx, req)
		if err == nil {
			metrics.RecordAttempt("success")
			return res, attempt, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			metrics.RecordAttempt("timeout")
			return nil, attempt, timeoutErr(attempt, err)
		}

		retryable := IsRetryable(err)
		metrics.RecordAttempt(retryLabel(retryable))
		log.Warnf("[Processing] attempt %d/%d failed: %v (retryable=%t)", attempt, o.maxAttempts, err, retryable)
		if !retryable || attempt == o.maxAttempts {
			break
		}
		if err := o.sleep(ctx, attempt); err != nil {
			return nil, attempt, timeoutErr(attempt, lastErr)
		}
	}
	return nil, attempt, &JobError{Kind: KindUpstream, Attempts: attempt, Err: lastErr}
}

// rehost downloads both outputs concurrently and stores them under fresh keys.
func (o *Orchestrator) rehost(ctx context.Context, res *Result) (string, string, error) {
	var targetURL, residualURL string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		url, err := o.transfer(gctx, res.TargetURL, "output/target.wav")
		targetURL = url
		return err
	})
	g.Go(func() error {
		url, err := o.transfer(gctx, res.ResidualURL, "output/residual.wav")
		residualURL = url
		return err
	})
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return "", "", timeoutErr(0, err)
		}
		var je *JobError
		if errors.As(err, &je) {
			return "", "", je
		}
		return "", "", &JobError{Kind: KindUpstream, Err: err}
	}
	return targetURL, residualURL, nil
}

func (o *Orchestrator) transfer(ctx context.Context, src, name string) (string, error) {
	data, err := o.fetchWithRetry(ctx, src, name)
	if err != nil {
		return "", err
	}
	key, err := blobstore.ObjectKey(name)
	if err != nil {
		return "", &JobError{Kind: KindStorage, Err: err}
	}
	url, err := o.blobs.Put(ctx, key, "audio/wav", data)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", &JobError{Kind: KindStorage, Err: err}
	}
	log.Infof("[Processing] re-hosted %s (%.1f KB)", key, float64(len(data))/1024)
	return url, nil
}

func (o *Orchestrator) fetchWithRetry(ctx context.Context, src, label string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		data, err := o.fetcher.Fetch(ctx, src)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil || !IsRetryable(err) || attempt == o.maxAttempts {
			break
		}
		log.Warnf("[Processing] download %s attempt %d failed: %v", label, attempt, err)
		if err := o.sleep(ctx, attempt); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("download %s: %w", label, lastErr)
}

func (o *Orchestrator) sleep(ctx context.Context, attempt int) error {
	delay := o.baseDelay * time.Duration(1<<(attempt-1))
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func timeoutErr(attempts int, cause error) *JobError {
	if cause == nil {
		cause = context.DeadlineExceeded
	}
	return &JobError{Kind: KindTimeout, Attempts: attempts, Err: cause}
}

func retryLabel(retryable bool) string {
	if retryable {
		return "retryable_error"
	}
	return "terminal_error"
}
