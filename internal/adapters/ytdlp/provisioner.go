package ytdlp

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/singleflight"

	"clipforge/internal/core/domain"
	"clipforge/internal/core/ports"
)

// DefaultReleaseURL serves the standalone yt-dlp builds, which need no Python.
const DefaultReleaseURL = "https://github.com/yt-dlp/yt-dlp/releases/latest/download"

// ProvisionerConfig controls where the yt-dlp binary lives and where it comes from.
type ProvisionerConfig struct {
	// BinDir is where a downloaded binary is stored. Defaults to os.TempDir(),
	// the one place that stays writable on read-only deployments.
	BinDir string
	// BinaryPath points at an existing yt-dlp (absolute path or a name on PATH).
	// When set nothing is ever downloaded.
	BinaryPath string
	ReleaseURL string

	GOOS   string
	GOARCH string
}

// Provisioner implements ports.Provisioner. The first EnsureReady call
// downloads the binary; callers arriving while that download is in flight wait
// for it instead of starting their own.
type Provisioner struct {
	downloader ports.Downloader
	logger     hclog.Logger

	name     string
	path     string
	assetURL string
	goos     string
	external string

	flight singleflight.Group
	active atomic.Pointer[string] // set once the binary is usable
}

// NewProvisioner computes the target path. Nothing touches the disk until
// EnsureReady.
func NewProvisioner(cfg ProvisionerConfig, dl ports.Downloader, logger hclog.Logger) *Provisioner {
	goos := cfg.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	goarch := cfg.GOARCH
	if goarch == "" {
		goarch = runtime.GOARCH
	}
	dir := cfg.BinDir
	if dir == "" {
		dir = os.TempDir()
	}
	release := strings.TrimRight(cfg.ReleaseURL, "/")
	if release == "" {
		release = DefaultReleaseURL
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	name := binaryName(goos)
	return &Provisioner{
		downloader: dl,
		logger:     logger.Named("provisioner"),
		name:       name,
		path:       filepath.Join(dir, name),
		assetURL:   release + "/" + releaseAsset(goos, goarch),
		goos:       goos,
		external:   cfg.BinaryPath,
	}
}

func binaryName(goos string) string {
	if goos == "windows" {
		return "yt-dlp.exe"
	}
	return "yt-dlp"
}

func releaseAsset(goos, goarch string) string {
	switch goos {
	case "windows":
		return "yt-dlp.exe"
	case "darwin":
		return "yt-dlp_macos"
	case "linux":
		if goarch == "arm64" {
			return "yt-dlp_linux_aarch64"
		}
		return "yt-dlp_linux"
	default:
		return "yt-dlp"
	}
}

// Binary reports the current state without provisioning anything.
func (p *Provisioner) Binary() domain.ToolBinary {
	if active := p.active.Load(); active != nil {
		return domain.ToolBinary{Path: *active, Name: p.name, Ready: true}
	}
	return domain.ToolBinary{Path: p.path, Name: p.name}
}

func (p *Provisioner) markReady(path string) {
	p.active.Store(&path)
}

// EnsureReady returns the binary, downloading it first if necessary. A failed
// download is not remembered, so the next call tries again.
func (p *Provisioner) EnsureReady(ctx context.Context) (domain.ToolBinary, error) {
	if p.active.Load() != nil {
		return p.Binary(), nil
	}

	// The download outlives any single caller: others may be waiting on it.
	flightCtx := context.WithoutCancel(ctx)
	ch := p.flight.DoChan(p.path, func() (interface{}, error) {
		return nil, p.materialize(flightCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return p.Binary(), res.Err
		}
		return p.Binary(), nil
	case <-ctx.Done():
		return p.Binary(), ctx.Err()
	}
}

func (p *Provisioner) materialize(ctx context.Context) error {
	if p.active.Load() != nil {
		return nil
	}

	if p.external != "" {
		resolved, err := exec.LookPath(p.external)
		if err != nil {
			return domain.NewProvisioningError(fmt.Errorf("configured yt-dlp %q is not executable: %w", p.external, err))
		}
		p.markReady(resolved)
		return nil
	}

	if _, err := os.Stat(p.path); err == nil {
		p.logger.Debug("yt-dlp already present", "path", p.path)
		p.markReady(p.path)
		return nil
	}

	p.logger.Info("yt-dlp binary not found, downloading standalone build", "path", p.path, "url", p.assetURL)
	if err := p.download(ctx); err != nil {
		p.logger.Error("failed to download yt-dlp", "error", err)
		return domain.NewProvisioningError(err)
	}

	p.markReady(p.path)
	p.logger.Info("yt-dlp binary ready", "path", p.path)
	return nil
}

func (p *Provisioner) download(ctx context.Context) (err error) {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("failed to create bin directory: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.tmp-%s", p.path, uuid.NewString())
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	body, err := p.downloader.Download(ctx, p.assetURL)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmpPath, err)
	}
	if _, err = io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("failed to write yt-dlp binary: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("failed to write yt-dlp binary: %w", err)
	}

	// Executable before it becomes visible under its final name.
	if p.goos != "windows" {
		if err = os.Chmod(tmpPath, 0o755); err != nil {
			return fmt.Errorf("failed to mark yt-dlp executable: %w", err)
		}
	}

	if err = os.Rename(tmpPath, p.path); err != nil {
		return fmt.Errorf("failed to move yt-dlp into place: %w", err)
	}
	return nil
}
