package service

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"clipforge/internal/core/ports"
)

// Janitor periodically deletes clips nobody came to collect.
type Janitor struct {
	storage  ports.ClipStorage
	interval time.Duration
	logger   hclog.Logger
}

func NewJanitor(storage ports.ClipStorage, interval time.Duration, logger hclog.Logger) *Janitor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Janitor{storage: storage, interval: interval, logger: logger.Named("janitor")}
}

// Run sweeps on every tick until ctx is done. A non-positive interval disables it.
func (j *Janitor) Run(ctx context.Context) {
	if j.interval <= 0 {
		return
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	removed, err := j.storage.Sweep(ctx)
	if err != nil {
		j.logger.Error("sweep failed", "dir", j.storage.Dir(), "error", err)
		return
	}
	if removed > 0 {
		j.logger.Info("removed abandoned clips", "count", removed)
	}
}
