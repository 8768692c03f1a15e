package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"clipforge/internal/core/domain"
	"clipforge/internal/core/ports"
)

const (
	DefaultDownloadPath = "/api/download"
	DefaultFilename     = "clip.mp4"

	detailPreparing = "Preparing downloader..."

	// maxSeconds bounds start and end well above any real video length.
	maxSeconds = 1e9
)

// Options tunes the orchestrator.
type Options struct {
	// DownloadPath is the route clip references are served from.
	DownloadPath string
	Filename     string
	// CheckDuration resolves metadata before extracting so that ranges past
	// the end of the video are rejected up front.
	CheckDuration bool
}

// Orchestrator coordinates the clip workflow: validation, extraction,
// progress delivery and one-shot retrieval.
type Orchestrator struct {
	provisioner ports.Provisioner
	metadata    ports.MetadataSource
	extractor   ports.Extractor
	storage     ports.ClipStorage
	opts        Options
	logger      hclog.Logger
}

// NewOrchestrator creates a new Orchestrator. provisioner may be nil, in
// which case the extractor provisions yt-dlp on its own.
func NewOrchestrator(
	provisioner ports.Provisioner,
	metadata ports.MetadataSource,
	extractor ports.Extractor,
	storage ports.ClipStorage,
	opts Options,
	logger hclog.Logger,
) *Orchestrator {
	if opts.DownloadPath == "" {
		opts.DownloadPath = DefaultDownloadPath
	}
	if opts.Filename == "" {
		opts.Filename = DefaultFilename
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Orchestrator{
		provisioner: provisioner,
		metadata:    metadata,
		extractor:   extractor,
		storage:     storage,
		opts:        opts,
		logger:      logger.Named("orchestrator"),
	}
}

// Metadata resolves descriptive attributes for videoURL.
func (o *Orchestrator) Metadata(ctx context.Context, videoURL string) (domain.VideoMetadata, error) {
	videoURL = strings.TrimSpace(videoURL)
	if videoURL == "" {
		return domain.VideoMetadata{}, domain.NewValidationError("URL is required", "url")
	}
	meta, err := o.metadata.ResolveMetadata(ctx, videoURL)
	if err != nil {
		o.logger.Error("metadata lookup failed", "url", videoURL, "error", err)
		return domain.VideoMetadata{}, err
	}
	return meta, nil
}

// Validate rejects malformed requests before any external process starts.
func (o *Orchestrator) Validate(ctx context.Context, req domain.ClipRequest) error {
	if err := validateRequest(req, 0); err != nil {
		return err
	}
	if !o.opts.CheckDuration {
		return nil
	}

	meta, err := o.metadata.ResolveMetadata(ctx, req.URL)
	if err != nil {
		return err
	}
	return validateRequest(req, meta.Duration)
}

// validateRequest checks req against a known duration; zero means unknown.
func validateRequest(req domain.ClipRequest, duration int) error {
	if strings.TrimSpace(req.URL) == "" {
		return domain.NewValidationError("Missing required parameters: url", "url")
	}
	if req.Start == nil || req.End == nil {
		return domain.NewValidationError("Missing required parameters: start and end", "start")
	}
	start, end := req.Range()
	if start < 0 {
		return domain.NewValidationError("start must not be negative", "start")
	}
	if float64(end) > maxSeconds {
		return domain.NewValidationError(fmt.Sprintf("end must not exceed %d seconds", int64(maxSeconds)), "end")
	}
	if end <= start {
		return domain.NewValidationError(fmt.Sprintf("end (%s) must be after start (%s)", end, start), "end")
	}
	if duration > 0 && float64(end) > float64(duration) {
		return domain.NewValidationError(fmt.Sprintf("end (%s) is past the end of the video (%s)", end, domain.Seconds(duration)), "end")
	}
	if _, err := domain.ParseQuality(req.Quality); err != nil {
		return domain.NewValidationError(err.Error(), "quality")
	}
	return nil
}

// CreateClip extracts a clip and waits for the result. Progress is discarded.
func (o *Orchestrator) CreateClip(ctx context.Context, req domain.ClipRequest) (*domain.ClipResult, error) {
	if err := o.Validate(ctx, req); err != nil {
		return nil, err
	}
	return o.runClip(ctx, req, newProgressTracker(nil))
}

// StreamClip validates req and then extracts it in the background. The
// returned channel carries every progress event in order, ends with exactly
// one terminal event, and is closed afterwards. Cancelling ctx stops the
// extraction; events that can no longer be delivered are dropped.
func (o *Orchestrator) StreamClip(ctx context.Context, req domain.ClipRequest) (<-chan domain.ProgressEvent, error) {
	if err := o.Validate(ctx, req); err != nil {
		return nil, err
	}

	events := make(chan domain.ProgressEvent, 16)
	tracker := newProgressTracker(func(ev domain.ProgressEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})

	go func() {
		defer close(events)
		result, err := o.runClip(ctx, req, tracker)
		if err != nil {
			tracker.finish(domain.ProgressEvent{Status: domain.StatusError, Error: domain.PublicMessage(err)})
			return
		}
		tracker.finish(domain.ProgressEvent{
			Status:      domain.StatusComplete,
			FilePath:    result.FilePath,
			DownloadURL: result.DownloadURL,
		})
	}()
	return events, nil
}

// runClip drives one ClipJob through its phases.
func (o *Orchestrator) runClip(ctx context.Context, req domain.ClipRequest, tracker *progressTracker) (*domain.ClipResult, error) {
	job := &domain.ClipJob{
		ID:        uuid.NewString(),
		Request:   req,
		Phase:     domain.PhaseProvisioning,
		CreatedAt: time.Now().UTC(),
	}
	log := o.logger.With("job_id", job.ID)
	start, end := req.Range()
	log.Info("starting clip", "url", req.URL, "start", start.String(), "end", end.String(), "quality", req.Quality)

	fail := func(err error) (*domain.ClipResult, error) {
		job.MarkFailed(err)
		if domain.KindOf(err) == domain.KindCancelled {
			log.Warn("clip cancelled", "phase", job.Phase)
		} else {
			log.Error("clip failed", "error", err)
		}
		return nil, err
	}

	if o.provisioner != nil {
		tracker.progress(0, detailPreparing)
		if _, err := o.provisioner.EnsureReady(ctx); err != nil {
			if ctx.Err() != nil {
				return fail(domain.NewCancelledError(ctx.Err()))
			}
			return fail(err)
		}
	}

	job.Phase = domain.PhaseResolving
	outputPath, err := o.storage.NewClipPath(job.ID)
	if err != nil {
		return fail(domain.NewExtractionError("", err))
	}
	job.OutputPath = outputPath

	job.Phase = domain.PhaseExtracting
	path, err := o.extractor.ExtractClip(ctx, req, outputPath, func(percent float64, detail string) {
		job.Percent = percent
		tracker.progress(percent, detail)
	})
	if err != nil {
		if domain.KindOf(err) == "" {
			err = domain.NewExtractionError("", err)
		}
		return fail(err)
	}

	job.MarkComplete(path)
	log.Info("clip ready", "path", path, "elapsed", job.CompletedAt.Sub(job.CreatedAt).String())

	return &domain.ClipResult{
		JobID:       job.ID,
		FilePath:    path,
		Reference:   job.ID,
		Filename:    o.opts.Filename,
		DownloadURL: o.DownloadURL(job.ID, o.opts.Filename),
	}, nil
}

// DownloadURL builds the one-shot retrieval link for a clip reference.
func (o *Orchestrator) DownloadURL(ref, filename string) string {
	q := url.Values{}
	q.Set("id", ref)
	q.Set("filename", filename)
	return o.opts.DownloadPath + "?" + q.Encode()
}

// Retrieve claims the clip behind ref for a single transfer. The caller must
// call Release on the result once the transfer ends, however it ends.
func (o *Orchestrator) Retrieve(ctx context.Context, ref string) (*ports.ClaimedClip, error) {
	clip, err := o.storage.Claim(ctx, ref)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("clip claimed for download", "ref", ref, "size", clip.Size)
	return clip, nil
}

// SafeFilename reduces a caller-supplied download name to something that is
// safe to put in a Content-Disposition header.
func SafeFilename(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == '"' || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return DefaultFilename
	}
	return name
}
