package processing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clearaudio/gateway/internal/pkg/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type step struct {
	res   *Result
	err   error
	block bool
}

type fakeSeparator struct {
	mu    sync.Mutex
	steps []step
	calls []Request
	times []time.Time
}

func (f *fakeSeparator) Separate(ctx context.Context, req Request) (*Result, error) {
	f.mu.Lock()
	i := len(f.calls)
	f.calls = append(f.calls, req)
	f.times = append(f.times, time.Now())
	var s step
	if i < len(f.steps) {
		s = f.steps[i]
	} else if len(f.steps) > 0 {
		s = f.steps[len(f.steps)-1]
	}
	f.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.res, s.err
}

func (f *fakeSeparator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeFetcher struct {
	mu       sync.Mutex
	failures map[string]int
	oversize map[string]bool
	fetched  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	if f.oversize[url] {
		return nil, ErrOutputTooLarge
	}
	if f.failures[url] > 0 {
		f.failures[url]--
		return nil, &StatusError{StatusCode: 503}
	}
	return []byte("audio:" + url), nil
}

type failingBlobs struct{}

func (failingBlobs) Put(context.Context, string, string, []byte) (string, error) {
	return "", errors.New("bucket unreachable")
}

var okResult = &Result{
	TargetURL:   "https://fal.media/files/target.wav",
	ResidualURL: "https://fal.media/files/residual.wav",
	SampleRate:  44100,
	Duration:    3.2,
}

func newTestOrchestrator(t *testing.T, sep Separator, fetch Fetcher, cfg Config) (*Orchestrator, *blobstore.LocalStore) {
	t.Helper()
	local, err := blobstore.NewLocalStore(t.TempDir(), "http://localhost:8080/blobs")
	require.NoError(t, err)
	if fetch == nil {
		fetch = &fakeFetcher{}
	}
	return NewOrchestrator(sep, fetch, local, cfg), local
}

func TestRunProcessingJobSuccess(t *testing.T) {
	sep := &fakeSeparator{steps: []step{{res: okResult}}}
	fetch := &fakeFetcher{}
	o, local := newTestOrchestrator(t, sep, fetch, Config{BaseDelay: 10 * time.Millisecond})

	in := validInput()
	in.HighFidelity = true
	out, err := o.RunProcessingJob(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 44100, out.SampleRate)
	assert.Equal(t, 3.2, out.Duration)
	assert.True(t, strings.HasPrefix(out.TargetURL, "http://localhost:8080/blobs/output/target-"), out.TargetURL)
	assert.True(t, strings.HasPrefix(out.ResidualURL, "http://localhost:8080/blobs/output/residual-"), out.ResidualURL)
	assert.NotContains(t, out.TargetURL, "fal.media")

	rel := strings.TrimPrefix(out.TargetURL, "http://localhost:8080/blobs/")
	data, err := os.ReadFile(filepath.Join(local.Dir(), filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, "audio:"+okResult.TargetURL, string(data))
	assert.ElementsMatch(t, []string{okResult.TargetURL, okResult.ResidualURL}, fetch.fetched)

	require.Len(t, sep.calls, 1)
	req := sep.calls[0]
	assert.Equal(t, "https://cdn.example.com/in.mp3", req.AudioURL)
	assert.Equal(t, "balanced", req.Acceleration)
	assert.True(t, req.PredictSpans)
	assert.Equal(t, 7, req.RerankingCandidates)
}

func TestRunProcessingJobRetriesWithBackoff(t *testing.T) {
	base := 20 * time.Millisecond
	sep := &fakeSeparator{steps: []step{
		{err: &StatusError{StatusCode: 503}},
		{err: errors.New("connection reset by peer")},
		{res: okResult},
	}}
	o, _ := newTestOrchestrator(t, sep, nil, Config{BaseDelay: base})

	start := time.Now()
	out, err := o.RunProcessingJob(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, 3, out.Attempts)
	assert.GreaterOrEqual(t, time.Since(start), 3*base)

	require.Len(t, sep.times, 3)
	assert.GreaterOrEqual(t, sep.times[1].Sub(sep.times[0]), base)
	assert.GreaterOrEqual(t, sep.times[2].Sub(sep.times[1]), 2*base)
}

func TestRunProcessingJobStopsOnTerminalError(t *testing.T) {
	sep := &fakeSeparator{steps: []step{{err: &StatusError{StatusCode: 422, Body: "unsupported codec"}}}}
	o, _ := newTestOrchestrator(t, sep, nil, Config{BaseDelay: time.Millisecond})

	_, err := o.RunProcessingJob(context.Background(), validInput())
	require.Error(t, err)
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.Equal(t, 1, sep.count())

	var je *JobError
	require.ErrorAs(t, err, &je)
	assert.Equal(t, 1, je.Attempts)
}

func TestRunProcessingJobGivesUpAfterMaxAttempts(t *testing.T) {
	sep := &fakeSeparator{steps: []step{{err: &StatusError{StatusCode: 502}}}}
	o, _ := newTestOrchestrator(t, sep, nil, Config{BaseDelay: time.Millisecond})

	_, err := o.RunProcessingJob(context.Background(), validInput())
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.Equal(t, 3, sep.count())
}

func TestRunProcessingJobDeadline(t *testing.T) {
	sep := &fakeSeparator{steps: []step{{block: true}}}
	o, _ := newTestOrchestrator(t, sep, nil, Config{BaseDelay: time.Millisecond, Deadline: 50 * time.Millisecond})

	start := time.Now()
	_, err := o.RunProcessingJob(context.Background(), validInput())
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, sep.count())
}

func TestRunProcessingJobDeadlineDuringBackoff(t *testing.T) {
	sep := &fakeSeparator{steps: []step{{err: &StatusError{StatusCode: 503}}}}
	o, _ := newTestOrchestrator(t, sep, nil, Config{BaseDelay: 500 * time.Millisecond, Deadline: 60 * time.Millisecond})

	start := time.Now()
	_, err := o.RunProcessingJob(context.Background(), validInput())
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.Equal(t, 1, sep.count())
}

func TestRunProcessingJobCallerCancel(t *testing.T) {
	sep := &fakeSeparator{steps: []step{{block: true}}}
	o, _ := newTestOrchestrator(t, sep, nil, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := o.RunProcessingJob(ctx, validInput())
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestRunProcessingJobIncompleteResult(t *testing.T) {
	tests := []struct {
		name string
		res  *Result
	}{
		{"nil result", nil},
		{"missing residual", &Result{TargetURL: "https://fal.media/t.wav"}},
		{"missing target", &Result{ResidualURL: "https://fal.media/r.wav"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sep := &fakeSeparator{steps: []step{{res: tt.res}}}
			fetch := &fakeFetcher{}
			o, _ := newTestOrchestrator(t, sep, fetch, Config{BaseDelay: time.Millisecond})

			_, err := o.RunProcessingJob(context.Background(), validInput())
			assert.Equal(t, KindIncomplete, KindOf(err))
			assert.Equal(t, 1, sep.count())
			assert.Empty(t, fetch.fetched)
		})
	}
}

func TestRunProcessingJobValidationSkipsUpstream(t *testing.T) {
	sep := &fakeSeparator{steps: []step{{res: okResult}}}
	o, _ := newTestOrchestrator(t, sep, nil, Config{})

	in := validInput()
	in.SourceURL = "not a url"
	_, err := o.RunProcessingJob(context.Background(), in)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Zero(t, sep.count())
}

func TestRunProcessingJobRetriesDownloads(t *testing.T) {
	sep := &fakeSeparator{steps: []step{{res: okResult}}}
	fetch := &fakeFetcher{failures: map[string]int{okResult.ResidualURL: 1}}
	o, _ := newTestOrchestrator(t, sep, fetch, Config{BaseDelay: time.Millisecond})

	out, err := o.RunProcessingJob(context.Background(), validInput())
	require.NoError(t, err)
	assert.NotEmpty(t, out.ResidualURL)
	assert.Len(t, fetch.fetched, 3)
}

func TestRunProcessingJobStorageFailure(t *testing.T) {
	sep := &fakeSeparator{steps: []step{{res: okResult}}}
	o := NewOrchestrator(sep, &fakeFetcher{}, failingBlobs{}, Config{BaseDelay: time.Millisecond})

	_, err := o.RunProcessingJob(context.Background(), validInput())
	assert.Equal(t, KindStorage, KindOf(err))
}

func TestRunProcessingJobOversizedOutput(t *testing.T) {
	sep := &fakeSeparator{steps: []step{{res: okResult}}}
	fetch := &fakeFetcher{oversize: map[string]bool{okResult.TargetURL: true}}
	o, _ := newTestOrchestrator(t, sep, fetch, Config{BaseDelay: time.Millisecond})

	_, err := o.RunProcessingJob(context.Background(), validInput())
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.ErrorIs(t, err, ErrOutputTooLarge)
	assert.Equal(t, 1, sep.count())
	fetch.mu.Lock()
	defer fetch.mu.Unlock()
	n := 0
	for _, u := range fetch.fetched {
		if u == okResult.TargetURL {
			n++
		}
	}
	assert.Equal(t, 1, n)
}
