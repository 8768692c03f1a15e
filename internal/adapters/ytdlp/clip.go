package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"clipforge/internal/core/domain"
	"clipforge/internal/core/ports"
)

const (
	// OutputExt is the container every clip is muxed into.
	OutputExt = ".mp4"

	detailDownloading = "Downloading and processing..."
	detailCutting     = "Cutting clip..."
	detailFinalizing  = "Finalizing clip..."
)

// FormatSelector builds the yt-dlp format expression for a height ceiling.
// Preference order: mp4 video at or under the ceiling plus m4a audio, then a
// combined mp4 stream, then whatever is best.
func FormatSelector(maxHeight int) string {
	if maxHeight <= 0 {
		return "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
	}
	return fmt.Sprintf(
		"bestvideo[height<=%d][ext=mp4]+bestaudio[ext=m4a]/best[height<=%d][ext=mp4]/best[ext=mp4]/best",
		maxHeight, maxHeight,
	)
}

// SectionArg expresses [start, end) as a yt-dlp --download-sections value.
func SectionArg(start, end domain.Seconds) string {
	return fmt.Sprintf("*%s-%s", start.Arg(), end.Arg())
}

func (c *Client) clipArgs(req domain.ClipRequest, outputPath string) ([]string, error) {
	height, err := domain.ParseQuality(req.Quality)
	if err != nil {
		return nil, err
	}
	start, end := req.Range()

	args := []string{
		req.URL,
		"--download-sections", SectionArg(start, end),
		"-o", outputPath,
		"--force-keyframes-at-cuts",
		"-f", FormatSelector(height),
		"--merge-output-format", "mp4",
		"--no-playlist",
		"--newline",
		"--no-colors",
	}
	if c.opts.FFmpegPath != "" {
		args = append(args, "--ffmpeg-location", c.opts.FFmpegPath)
	}
	return args, nil
}

// ExtractClip downloads only the requested section of req.URL into
// outputPath. It returns outputPath once yt-dlp exits cleanly and the file
// exists and is non-empty. outputPath is left alone on failure.
func (c *Client) ExtractClip(ctx context.Context, req domain.ClipRequest, outputPath string, onProgress ports.ProgressFunc) (string, error) {
	if onProgress == nil {
		onProgress = func(float64, string) {}
	}
	if c.opts.ExtractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ExtractTimeout)
		defer cancel()
	}

	args, err := c.clipArgs(req, outputPath)
	if err != nil {
		return "", domain.NewValidationError(err.Error(), "quality")
	}

	bin, err := c.provisioner.EnsureReady(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", domain.NewCancelledError(ctx.Err())
		}
		return "", err
	}

	start, end := req.Range()
	tracker := newProgressParser(float64(end - start))

	c.logger.Debug("running yt-dlp", "args", strings.Join(args, " "))
	err = c.stream(ctx, bin.Path, args, func(line string, _ bool) {
		if percent, detail, ok := tracker.parse(line); ok {
			onProgress(percent, detail)
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", domain.NewCancelledError(ctx.Err())
		}
		return "", extractionError(err, outputPath)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return "", domain.NewExtractionError("clip extraction produced no output", err)
	}
	if info.Size() == 0 {
		return "", domain.NewExtractionError("clip extraction produced an empty file", nil)
	}
	return outputPath, nil
}

func extractionError(err error, outputPath string) error {
	var ee *execError
	if errors.As(err, &ee) {
		if reason := sanitize(ee.reason(), outputPath); reason != "" {
			return domain.NewExtractionError("clip extraction failed: "+reason, err)
		}
	}
	return domain.NewExtractionError("", err)
}

// sanitize keeps scratch paths out of caller-facing messages.
func sanitize(msg, outputPath string) string {
	if outputPath == "" {
		return msg
	}
	msg = strings.ReplaceAll(msg, outputPath, "<output>")
	return strings.ReplaceAll(msg, filepath.Dir(outputPath)+string(filepath.Separator), "")
}
