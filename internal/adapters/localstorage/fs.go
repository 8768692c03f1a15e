package localstorage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"clipforge/internal/core/domain"
	"clipforge/internal/core/ports"
)

const (
	clipExt       = ".mp4"
	sendingSuffix = ".sending-"
)

// LocalStorage implements ports.ClipStorage on the local filesystem. Clips are
// named after their job id, which doubles as the retrieval reference.
type LocalStorage struct {
	BaseDir   string
	Retention time.Duration

	rename func(oldpath, newpath string) error
}

// NewLocalStorage creates a new LocalStorage rooted at baseDir. An empty
// baseDir means the system temp directory.
func NewLocalStorage(baseDir string, retention time.Duration) *LocalStorage {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "clipforge")
	}
	return &LocalStorage{BaseDir: baseDir, Retention: retention, rename: os.Rename}
}

// Dir returns the directory clip outputs are written to.
func (s *LocalStorage) Dir() string {
	return filepath.Join(s.BaseDir, "clips")
}

// NewClipPath creates the clips directory and returns the output path for jobID.
func (s *LocalStorage) NewClipPath(jobID string) (string, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return "", fmt.Errorf("invalid job id %q: %w", jobID, err)
	}
	if err := os.MkdirAll(s.Dir(), 0o755); err != nil {
		return "", fmt.Errorf("failed to create clip directory %s: %w", s.Dir(), err)
	}
	return s.clipPath(jobID), nil
}

func (s *LocalStorage) clipPath(jobID string) string {
	return filepath.Join(s.Dir(), jobID+clipExt)
}

// Claim moves the clip out of the way with an atomic rename, so exactly one
// caller can ever hold it. The returned Release deletes the file.
func (s *LocalStorage) Claim(ctx context.Context, ref string) (*ports.ClaimedClip, error) {
	id, err := uuid.Parse(ref)
	if err != nil {
		return nil, domain.NewRetrievalError(ref)
	}
	src := s.clipPath(id.String())
	claimed := src + sendingSuffix + uuid.NewString()

	rename := s.rename
	if rename == nil {
		rename = os.Rename
	}
	if err := rename(src, claimed); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.NewRetrievalError(ref)
		}
		// A clip that cannot be claimed is still spent.
		if rmErr := os.Remove(src); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = errors.Join(err, rmErr)
		}
		return nil, fmt.Errorf("failed to claim clip %s: %w", ref, err)
	}

	info, err := os.Stat(claimed)
	if err != nil {
		_ = os.Remove(claimed)
		return nil, fmt.Errorf("failed to stat clip %s: %w", ref, err)
	}

	return &ports.ClaimedClip{
		Path: claimed,
		Size: info.Size(),
		Release: func() error {
			if err := os.Remove(claimed); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to delete clip %s: %w", ref, err)
			}
			return nil
		},
	}, nil
}

// Sweep deletes clip files, including interrupted transfers, that are older
// than the retention window.
func (s *LocalStorage) Sweep(ctx context.Context) (int, error) {
	if s.Retention <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list clip directory: %w", err)
	}

	cutoff := time.Now().Add(-s.Retention)
	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if entry.IsDir() || !strings.Contains(entry.Name(), clipExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.Dir(), entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
