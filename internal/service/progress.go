package service

import (
	"sync"

	"clipforge/internal/core/domain"
)

// progressTracker guards the event sequence of a single job: percentages
// never go backwards and stay within [0,100], and exactly one terminal event
// is delivered, after which everything is dropped.
type progressTracker struct {
	mu   sync.Mutex
	last float64
	done bool
	sink func(domain.ProgressEvent)
}

func newProgressTracker(sink func(domain.ProgressEvent)) *progressTracker {
	if sink == nil {
		sink = func(domain.ProgressEvent) {}
	}
	return &progressTracker{sink: sink}
}

func (t *progressTracker) progress(percent float64, detail string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	if percent > 100 {
		percent = 100
	}
	// yt-dlp restarts at 0% for the audio stream after the video stream.
	if percent < t.last {
		percent = t.last
	}
	t.last = percent
	t.sink(domain.Processing(percent, detail))
}

// finish delivers the terminal event. It reports false if one was already sent.
func (t *progressTracker) finish(ev domain.ProgressEvent) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.sink(ev)
	return true
}
