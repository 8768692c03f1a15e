package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v4/disk"

	"clipforge/internal/core/domain"
	"clipforge/internal/core/ports"
	"clipforge/internal/service"
)

// ClipService is the part of the orchestrator the HTTP layer needs.
type ClipService interface {
	Metadata(ctx context.Context, videoURL string) (domain.VideoMetadata, error)
	CreateClip(ctx context.Context, req domain.ClipRequest) (*domain.ClipResult, error)
	StreamClip(ctx context.Context, req domain.ClipRequest) (<-chan domain.ProgressEvent, error)
	Retrieve(ctx context.Context, ref string) (*ports.ClaimedClip, error)
}

// ToolStatus reports whether yt-dlp is provisioned.
type ToolStatus interface {
	Binary() domain.ToolBinary
}

// Handlers serves the clip API.
type Handlers struct {
	clips      ClipService
	tool       ToolStatus
	scratchDir string
	logger     hclog.Logger
}

// NewHandlers creates a new Handlers. tool may be nil.
func NewHandlers(clips ClipService, tool ToolStatus, scratchDir string, logger hclog.Logger) *Handlers {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Handlers{
		clips:      clips,
		tool:       tool,
		scratchDir: scratchDir,
		logger:     logger.Named("http"),
	}
}

// RegisterRoutes mounts the API on router.
func (h *Handlers) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api")
	{
		api.GET("/metadata", h.GetMetadata)
		api.POST("/clip", h.CreateClip)
		api.GET("/download", h.Download)
		api.GET("/health", h.Health)
	}
}

// GetMetadata handles GET /api/metadata?url=.
func (h *Handlers) GetMetadata(c *gin.Context) {
	meta, err := h.clips.Metadata(c.Request.Context(), c.Query("url"))
	if err != nil {
		respondError(c, h.logger, err, nil)
		return
	}
	c.JSON(http.StatusOK, meta)
}

// CreateClip handles POST /api/clip. With ?wait=true it blocks until the clip
// is ready and answers with JSON; otherwise it streams progress events.
func (h *Handlers) CreateClip(c *gin.Context) {
	var req domain.ClipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, domain.NewValidationError("Invalid request body: "+bindMessage(err), "body"), nil)
		return
	}

	if c.Query("wait") == "true" {
		h.createClipBlocking(c, req)
		return
	}
	h.createClipStreaming(c, req)
}

func (h *Handlers) createClipBlocking(c *gin.Context, req domain.ClipRequest) {
	res, err := h.clips.CreateClip(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err, gin.H{"status": string(domain.StatusError)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":            string(domain.StatusComplete),
		"filePath":          res.FilePath,
		"downloadUrl":       res.DownloadURL,
		"downloadReference": res.Reference,
		"filename":          res.Filename,
	})
}

func (h *Handlers) createClipStreaming(c *gin.Context, req domain.ClipRequest) {
	events, err := h.clips.StreamClip(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err, nil)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.Stream(func(w io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		if err := writeEvent(w, ev); err != nil {
			h.logger.Warn("failed to write progress event", "error", err)
			return false
		}
		return !ev.Terminal()
	})
}

// writeEvent writes one "data: <json>\n\n" frame.
func writeEvent(w io.Writer, ev domain.ProgressEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

// Download handles GET /api/download?id=&filename=. The clip is deleted after
// the transfer attempt whether or not it succeeded.
func (h *Handlers) Download(c *gin.Context) {
	ref := c.Query("id")
	if ref == "" {
		respondError(c, h.logger, domain.NewRetrievalError(ref), nil)
		return
	}
	filename := service.SafeFilename(c.Query("filename"))

	clip, err := h.clips.Retrieve(c.Request.Context(), ref)
	if err != nil {
		respondError(c, h.logger, err, nil)
		return
	}
	defer func() {
		if err := clip.Release(); err != nil {
			h.logger.Error("cleanup failed", "ref", ref, "error", err)
		}
	}()

	f, err := os.Open(clip.Path)
	if err != nil {
		respondError(c, h.logger, fmt.Errorf("failed to open clip: %w", err), nil)
		return
	}
	defer f.Close()

	contentType := "video/mp4"
	if mt, err := mimetype.DetectReader(f); err == nil && mt.String() != "application/octet-stream" {
		contentType = mt.String()
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		respondError(c, h.logger, fmt.Errorf("failed to rewind clip: %w", err), nil)
		return
	}

	c.DataFromReader(http.StatusOK, clip.Size, contentType, f, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, filename),
	})
	if len(c.Errors) > 0 {
		h.logger.Warn("download interrupted", "ref", ref, "error", c.Errors.Last())
	}
}

// Health handles GET /api/health.
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":     "ok",
		"toolReady":  false,
		"scratchDir": h.scratchDir,
	}
	if h.tool != nil {
		body["toolReady"] = h.tool.Binary().Ready
	}
	if usage, err := disk.UsageWithContext(c.Request.Context(), existingParent(h.scratchDir)); err == nil {
		body["scratchFreeBytes"] = usage.Free
	}
	c.JSON(http.StatusOK, body)
}

// existingParent walks up from dir until it finds something that exists, as
// the scratch directory is only created with the first clip.
func existingParent(dir string) string {
	if dir == "" {
		return os.TempDir()
	}
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

func bindMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, "\n"); i >= 0 {
		msg = msg[:i]
	}
	return msg
}
