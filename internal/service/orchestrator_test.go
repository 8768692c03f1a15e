package service

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipforge/internal/adapters/localstorage"
	"clipforge/internal/core/domain"
	"clipforge/internal/core/ports"
)

type fakeProvisioner struct {
	calls atomic.Int32
	err   error
}

func (f *fakeProvisioner) EnsureReady(context.Context) (domain.ToolBinary, error) {
	f.calls.Add(1)
	return domain.ToolBinary{Path: "/bin/yt-dlp", Name: "yt-dlp", Ready: f.err == nil}, f.err
}

type fakeMetadata struct {
	meta  domain.VideoMetadata
	err   error
	calls atomic.Int32
}

func (f *fakeMetadata) ResolveMetadata(context.Context, string) (domain.VideoMetadata, error) {
	f.calls.Add(1)
	return f.meta, f.err
}

// fakeExtractor reports the given percentages, then writes the output file
// unless err is set.
type fakeExtractor struct {
	percents []float64
	err      error
	block    bool
	calls    atomic.Int32
	lastPath string
}

func (f *fakeExtractor) ExtractClip(ctx context.Context, req domain.ClipRequest, outputPath string, onProgress ports.ProgressFunc) (string, error) {
	f.calls.Add(1)
	f.lastPath = outputPath
	for _, p := range f.percents {
		onProgress(p, "Downloading and processing...")
	}
	if f.block {
		<-ctx.Done()
		return "", domain.NewCancelledError(ctx.Err())
	}
	if f.err != nil {
		return "", f.err
	}
	if err := os.WriteFile(outputPath, []byte("mp4 bytes"), 0o644); err != nil {
		return "", err
	}
	return outputPath, nil
}

func secs(v float64) *domain.Seconds {
	s := domain.Seconds(v)
	return &s
}

func validRequest() domain.ClipRequest {
	return domain.ClipRequest{URL: "https://youtu.be/abc123", Start: secs(30), End: secs(45), Quality: "720"}
}

type harness struct {
	orch      *Orchestrator
	prov      *fakeProvisioner
	meta      *fakeMetadata
	extractor *fakeExtractor
	storage   *localstorage.LocalStorage
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		prov:      &fakeProvisioner{},
		meta:      &fakeMetadata{meta: domain.VideoMetadata{ID: "abc123", Title: "A video", Duration: 600}},
		extractor: &fakeExtractor{percents: []float64{10, 5, 60, 150}},
		storage:   localstorage.NewLocalStorage(t.TempDir(), time.Hour),
	}
	h.orch = NewOrchestrator(h.prov, h.meta, h.extractor, h.storage, opts, nil)
	return h
}

func drain(t *testing.T, events <-chan domain.ProgressEvent) []domain.ProgressEvent {
	t.Helper()
	var out []domain.ProgressEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("event stream did not close")
		}
	}
}

// assertWellFormed checks the ordering contract of a job's event sequence.
func assertWellFormed(t *testing.T, events []domain.ProgressEvent) domain.ProgressEvent {
	t.Helper()
	require.NotEmpty(t, events)
	last := -1.0
	for i, ev := range events[:len(events)-1] {
		assert.Equal(t, domain.StatusProcessing, ev.Status, "event %d", i)
		assert.GreaterOrEqual(t, ev.Percent, last, "event %d", i)
		assert.GreaterOrEqual(t, ev.Percent, 0.0)
		assert.LessOrEqual(t, ev.Percent, 100.0)
		last = ev.Percent
	}
	terminal := events[len(events)-1]
	assert.True(t, terminal.Terminal())
	return terminal
}

func TestValidateRejectsBadRequests(t *testing.T) {
	h := newHarness(t, Options{})
	cases := map[string]domain.ClipRequest{
		"missing url":      {Start: secs(1), End: secs(2)},
		"missing start":    {URL: "u", End: secs(2)},
		"missing end":      {URL: "u", Start: secs(1)},
		"end before start": {URL: "u", Start: secs(50), End: secs(40)},
		"empty range":      {URL: "u", Start: secs(5), End: secs(5)},
		"negative start":   {URL: "u", Start: secs(-1), End: secs(5)},
		"bad quality":      {URL: "u", Start: secs(1), End: secs(5), Quality: "ultra"},
		"huge end":         {URL: "u", Start: secs(0), End: secs(1e20)},
		"huge start":       {URL: "u", Start: secs(2e9), End: secs(3e9)},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.orch.CreateClip(context.Background(), req)
			assert.Equal(t, domain.KindValidation, domain.KindOf(err))

			_, err = h.orch.StreamClip(context.Background(), req)
			assert.Equal(t, domain.KindValidation, domain.KindOf(err))
		})
	}
	assert.Zero(t, h.extractor.calls.Load(), "validation happens before extraction")
	assert.Zero(t, h.prov.calls.Load())
}

func TestValidateAgainstKnownDuration(t *testing.T) {
	h := newHarness(t, Options{CheckDuration: true})
	h.meta.meta.Duration = 60

	_, err := h.orch.CreateClip(context.Background(), domain.ClipRequest{URL: "u", Start: secs(30), End: secs(90)})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.Zero(t, h.extractor.calls.Load())

	_, err = h.orch.CreateClip(context.Background(), domain.ClipRequest{URL: "u", Start: secs(30), End: secs(60)})
	assert.NoError(t, err)
}

func TestCreateClipBlocking(t *testing.T) {
	h := newHarness(t, Options{})

	res, err := h.orch.CreateClip(context.Background(), validRequest())
	require.NoError(t, err)

	assert.FileExists(t, res.FilePath)
	assert.Equal(t, h.storage.Dir(), filepath.Dir(res.FilePath))
	assert.Equal(t, ".mp4", filepath.Ext(res.FilePath))
	assert.Equal(t, DefaultFilename, res.Filename)
	assert.Equal(t, res.JobID, res.Reference)

	u, err := url.Parse(res.DownloadURL)
	require.NoError(t, err)
	assert.Equal(t, DefaultDownloadPath, u.Path)
	assert.Equal(t, res.Reference, u.Query().Get("id"))
	assert.Equal(t, "clip.mp4", u.Query().Get("filename"))
}

func TestCreateClipFailure(t *testing.T) {
	h := newHarness(t, Options{})
	h.extractor.err = errors.New("exit status 1")

	res, err := h.orch.CreateClip(context.Background(), validRequest())
	assert.Nil(t, res)
	assert.Equal(t, domain.KindExtraction, domain.KindOf(err))
}

func TestStreamClipScenario(t *testing.T) {
	h := newHarness(t, Options{})

	events, err := h.orch.StreamClip(context.Background(), validRequest())
	require.NoError(t, err)
	got := drain(t, events)

	terminal := assertWellFormed(t, got)
	assert.Equal(t, domain.StatusComplete, terminal.Status)
	assert.True(t, strings.HasSuffix(terminal.FilePath, ".mp4"))
	assert.FileExists(t, terminal.FilePath)
	assert.Contains(t, terminal.DownloadURL, DefaultDownloadPath+"?")

	var percents []float64
	for _, ev := range got[:len(got)-1] {
		percents = append(percents, ev.Percent)
	}
	assert.Equal(t, []float64{0, 10, 10, 60, 100}, percents)
	assert.Equal(t, detailPreparing, got[0].Detail)
}

func TestStreamClipExtractionError(t *testing.T) {
	h := newHarness(t, Options{})
	h.extractor.err = domain.NewExtractionError("clip extraction failed: Video unavailable", errors.New("exit status 1"))

	events, err := h.orch.StreamClip(context.Background(), validRequest())
	require.NoError(t, err)
	got := drain(t, events)

	terminal := assertWellFormed(t, got)
	assert.Equal(t, domain.StatusError, terminal.Status)
	assert.Equal(t, "clip extraction failed: Video unavailable", terminal.Error)
	for _, ev := range got {
		assert.NotEqual(t, domain.StatusComplete, ev.Status)
	}
}

func TestStreamClipProvisioningError(t *testing.T) {
	h := newHarness(t, Options{})
	h.prov.err = domain.NewProvisioningError(errors.New("dial tcp: timeout"))

	events, err := h.orch.StreamClip(context.Background(), validRequest())
	require.NoError(t, err)
	got := drain(t, events)

	terminal := assertWellFormed(t, got)
	assert.Equal(t, domain.StatusError, terminal.Status)
	assert.Equal(t, "failed to download yt-dlp", terminal.Error)
	assert.Zero(t, h.extractor.calls.Load())
}

func TestStreamClipCancelled(t *testing.T) {
	h := newHarness(t, Options{})
	h.extractor.block = true

	ctx, cancel := context.WithCancel(context.Background())
	events, err := h.orch.StreamClip(ctx, validRequest())
	require.NoError(t, err)

	// Read the first events, then disconnect.
	<-events
	cancel()
	drain(t, events)
}

func TestRetrieveIsSingleShot(t *testing.T) {
	h := newHarness(t, Options{})
	res, err := h.orch.CreateClip(context.Background(), validRequest())
	require.NoError(t, err)

	clip, err := h.orch.Retrieve(context.Background(), res.Reference)
	require.NoError(t, err)
	assert.Equal(t, int64(len("mp4 bytes")), clip.Size)
	require.NoError(t, clip.Release())
	assert.NoFileExists(t, res.FilePath)

	_, err = h.orch.Retrieve(context.Background(), res.Reference)
	assert.Equal(t, domain.KindRetrieval, domain.KindOf(err))
}

func TestConcurrentJobsUseDistinctOutputs(t *testing.T) {
	h := newHarness(t, Options{})
	h.orch.extractor = &pathRecorder{}

	const jobs = 8
	var wg sync.WaitGroup
	paths := make([]string, jobs)
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.orch.CreateClip(context.Background(), validRequest())
			if assert.NoError(t, err) {
				paths[i] = res.FilePath
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, p := range paths {
		assert.False(t, seen[p], "duplicate output path %s", p)
		seen[p] = true
	}
}

type pathRecorder struct{}

func (pathRecorder) ExtractClip(_ context.Context, _ domain.ClipRequest, outputPath string, _ ports.ProgressFunc) (string, error) {
	return outputPath, os.WriteFile(outputPath, []byte("x"), 0o644)
}

func TestMetadataRequiresURL(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.orch.Metadata(context.Background(), "  ")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	meta, err := h.orch.Metadata(context.Background(), "https://youtu.be/abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", meta.ID)
}

func TestSafeFilename(t *testing.T) {
	assert.Equal(t, "clip.mp4", SafeFilename(""))
	assert.Equal(t, "clip.mp4", SafeFilename(".."))
	assert.Equal(t, "passwd", SafeFilename("../../etc/passwd"))
	assert.Equal(t, "my clip.mp4", SafeFilename(" my clip.mp4 "))
	assert.Equal(t, "evil.mp4", SafeFilename("C:\\tmp\\evil.mp4"))
	assert.Equal(t, "ab.mp4", SafeFilename("a\"b.mp4"))
}
