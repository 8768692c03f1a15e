package service

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"clipforge/internal/core/domain"
	"clipforge/internal/core/ports"
)

// MetadataResolver prefers the hosted lookup when one is configured and falls
// back to asking yt-dlp directly.
type MetadataResolver struct {
	hosted ports.MetadataSource
	direct ports.MetadataSource
	logger hclog.Logger
}

// NewMetadataResolver creates a new MetadataResolver. hosted may be nil.
func NewMetadataResolver(hosted, direct ports.MetadataSource, logger hclog.Logger) *MetadataResolver {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &MetadataResolver{hosted: hosted, direct: direct, logger: logger.Named("metadata")}
}

func (r *MetadataResolver) ResolveMetadata(ctx context.Context, videoURL string) (domain.VideoMetadata, error) {
	if r.hosted != nil {
		meta, err := r.hosted.ResolveMetadata(ctx, videoURL)
		if err == nil {
			return meta, nil
		}
		if ctx.Err() != nil {
			return domain.VideoMetadata{}, domain.NewMetadataError("", err)
		}
		r.logger.Warn("hosted metadata lookup failed, falling back to yt-dlp", "url", videoURL, "error", err)
	}

	meta, err := r.direct.ResolveMetadata(ctx, videoURL)
	if err != nil {
		if domain.KindOf(err) == "" {
			return domain.VideoMetadata{}, domain.NewMetadataError("", err)
		}
		return domain.VideoMetadata{}, err
	}
	return meta, nil
}
