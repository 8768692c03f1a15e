package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"clipforge/internal/core/domain"
)

type videoInfo struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Duration  *float64 `json:"duration"`
	Thumbnail string   `json:"thumbnail"`
	Uploader  string   `json:"uploader"`
	Channel   string   `json:"channel"`
}

// ResolveMetadata asks yt-dlp for the video's info JSON without downloading
// any media.
func (c *Client) ResolveMetadata(ctx context.Context, videoURL string) (domain.VideoMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.MetadataTimeout)
	defer cancel()

	args := []string{
		"--dump-single-json",
		"--skip-download",
		"--no-playlist",
		"--no-warnings",
		videoURL,
	}
	out, err := c.output(ctx, args...)
	if err != nil {
		if domain.KindOf(err) == domain.KindProvisioning {
			return domain.VideoMetadata{}, err
		}
		return domain.VideoMetadata{}, metadataError(err)
	}

	meta, err := parseVideoInfo(out)
	if err != nil {
		return domain.VideoMetadata{}, domain.NewMetadataError("", err)
	}
	c.logger.Debug("resolved metadata", "id", meta.ID, "duration", meta.Duration)
	return meta, nil
}

func metadataError(err error) error {
	var ee *execError
	if errors.As(err, &ee) {
		if reason := ee.reason(); reason != "" {
			return domain.NewMetadataError("failed to fetch metadata: "+reason, err)
		}
	}
	return domain.NewMetadataError("", err)
}

func parseVideoInfo(data []byte) (domain.VideoMetadata, error) {
	var info videoInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return domain.VideoMetadata{}, fmt.Errorf("failed to parse yt-dlp info: %w", err)
	}
	if info.ID == "" && info.Title == "" {
		return domain.VideoMetadata{}, fmt.Errorf("yt-dlp returned no video info")
	}

	channel := info.Uploader
	if channel == "" {
		channel = info.Channel
	}
	var duration int
	if info.Duration != nil && *info.Duration > 0 {
		duration = int(math.Round(*info.Duration))
	}
	return domain.VideoMetadata{
		Title:     info.Title,
		Duration:  duration,
		Thumbnail: info.Thumbnail,
		Channel:   channel,
		ID:        info.ID,
	}, nil
}
