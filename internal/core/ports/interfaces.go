package ports

import (
	"context"
	"io"

	"clipforge/internal/core/domain"
)

// ProgressFunc receives intermediate progress from a running extraction.
type ProgressFunc func(percent float64, detail string)

// Provisioner makes sure the yt-dlp executable exists before it is used.
type Provisioner interface {
	// EnsureReady returns the binary, downloading it on first use.
	// Concurrent callers share a single download.
	EnsureReady(ctx context.Context) (domain.ToolBinary, error)
}

// MetadataSource resolves descriptive attributes for a source URL.
type MetadataSource interface {
	ResolveMetadata(ctx context.Context, videoURL string) (domain.VideoMetadata, error)
}

// Extractor produces a single trimmed media file for a ClipRequest.
type Extractor interface {
	// ExtractClip writes the clip to outputPath and returns it once the tool
	// exits successfully. It reports progress through onProgress and never
	// deletes outputPath on failure.
	ExtractClip(ctx context.Context, req domain.ClipRequest, outputPath string, onProgress ProgressFunc) (string, error)
}

// Downloader fetches remote files.
type Downloader interface {
	// Download fetches the given URL.
	// Returns a ReadCloser that the caller must close.
	Download(ctx context.Context, fileURL string) (io.ReadCloser, error)
}

// ClipStorage owns the scratch directory that clip outputs are written to.
type ClipStorage interface {
	// NewClipPath returns a fresh, collision-free output path for jobID.
	NewClipPath(jobID string) (string, error)

	// Claim takes exclusive ownership of the clip behind ref. A claimed clip can
	// no longer be claimed by anyone else.
	Claim(ctx context.Context, ref string) (*ClaimedClip, error)

	// Sweep removes clips older than the retention window and returns how many
	// were deleted.
	Sweep(ctx context.Context) (int, error)

	// Dir returns the scratch directory.
	Dir() string
}

// ClaimedClip is a clip taken out of storage for a single transfer. Release
// deletes the backing file whatever the outcome of the transfer.
type ClaimedClip struct {
	Path    string
	Size    int64
	Release func() error
}
