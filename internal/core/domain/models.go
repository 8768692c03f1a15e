package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"clipforge/pkg/timeutil"
)

// ToolBinary is the provisioned yt-dlp executable.
type ToolBinary struct {
	Path  string `json:"path"`
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
}

// VideoMetadata describes a source video without downloading any media.
type VideoMetadata struct {
	Title     string `json:"title"`
	Duration  int    `json:"duration"` // seconds
	Thumbnail string `json:"thumbnail"`
	Channel   string `json:"channel"`
	ID        string `json:"id"`
}

// Seconds is a point in a video. On the wire it is either a JSON number or a
// "HH:MM:SS" / "MM:SS" / "SS" string.
type Seconds float64

// UnmarshalJSON accepts numbers and time strings.
func (s *Seconds) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		v, err := timeutil.ParseTimeToSeconds(str)
		if err != nil {
			return err
		}
		*s = Seconds(v)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("time must be a number of seconds or a HH:MM:SS string")
	}
	*s = Seconds(f)
	return nil
}

// Arg renders the value the way yt-dlp section ranges expect it.
func (s Seconds) Arg() string {
	f := float64(s)
	if f == math.Trunc(f) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%.3f", f)
}

func (s Seconds) String() string {
	return timeutil.FormatTime(float64(s))
}

// ClipRequest is the input to a clip extraction. Start and End are pointers so
// an omitted field can be told apart from zero.
type ClipRequest struct {
	URL     string   `json:"url"`
	Start   *Seconds `json:"start"`
	End     *Seconds `json:"end"`
	Quality string   `json:"quality,omitempty"`
}

// Range returns the requested section. Callers must validate first.
func (r ClipRequest) Range() (Seconds, Seconds) {
	var start, end Seconds
	if r.Start != nil {
		start = *r.Start
	}
	if r.End != nil {
		end = *r.End
	}
	return start, end
}

// JobPhase is the lifecycle state of a ClipJob.
type JobPhase string

const (
	PhaseProvisioning JobPhase = "provisioning"
	PhaseResolving    JobPhase = "resolving"
	PhaseExtracting   JobPhase = "extracting"
	PhaseComplete     JobPhase = "complete"
	PhaseFailed       JobPhase = "failed"
)

// ClipJob is the runtime state of one extraction. It lives for a single request.
type ClipJob struct {
	ID          string      `json:"job_id"`
	Request     ClipRequest `json:"request"`
	OutputPath  string      `json:"-"`
	Phase       JobPhase    `json:"phase"`
	Percent     float64     `json:"percent"`
	Result      string      `json:"-"`
	Err         error       `json:"-"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt time.Time   `json:"completed_at,omitempty"`
}

// MarkComplete records the produced file.
func (j *ClipJob) MarkComplete(path string) {
	j.Phase = PhaseComplete
	j.Percent = 100
	j.Result = path
	j.CompletedAt = time.Now().UTC()
}

// MarkFailed records a terminal failure.
func (j *ClipJob) MarkFailed(err error) {
	j.Phase = PhaseFailed
	j.Err = err
	j.CompletedAt = time.Now().UTC()
}

// EventStatus is the kind of a ProgressEvent.
type EventStatus string

const (
	StatusProcessing EventStatus = "processing"
	StatusComplete   EventStatus = "complete"
	StatusError      EventStatus = "error"
)

// ProgressEvent is a point-in-time status of a clip job.
type ProgressEvent struct {
	Status      EventStatus `json:"status"`
	Percent     float64     `json:"percent,omitempty"`
	Detail      string      `json:"detail,omitempty"`
	FilePath    string      `json:"filePath,omitempty"`
	DownloadURL string      `json:"downloadUrl,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// MarshalJSON writes only the fields that belong to the event's status.
func (e ProgressEvent) MarshalJSON() ([]byte, error) {
	switch e.Status {
	case StatusProcessing:
		return json.Marshal(struct {
			Status  EventStatus `json:"status"`
			Percent float64     `json:"percent"`
			Detail  string      `json:"detail,omitempty"`
		}{e.Status, e.Percent, e.Detail})
	case StatusComplete:
		return json.Marshal(struct {
			Status      EventStatus `json:"status"`
			FilePath    string      `json:"filePath"`
			DownloadURL string      `json:"downloadUrl,omitempty"`
		}{e.Status, e.FilePath, e.DownloadURL})
	default:
		return json.Marshal(struct {
			Status EventStatus `json:"status"`
			Error  string      `json:"error"`
		}{e.Status, e.Error})
	}
}

// Terminal reports whether no further events may follow.
func (e ProgressEvent) Terminal() bool {
	return e.Status == StatusComplete || e.Status == StatusError
}

// Processing builds an intermediate event.
func Processing(percent float64, detail string) ProgressEvent {
	return ProgressEvent{Status: StatusProcessing, Percent: percent, Detail: detail}
}

// ClipResult is what a finished clip hands back to callers.
type ClipResult struct {
	JobID       string `json:"-"`
	FilePath    string `json:"filePath"`
	Reference   string `json:"downloadReference"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"downloadUrl"`
}

// ParseQuality turns a quality preference into a height ceiling in pixels.
// Zero means no ceiling ("" or "best").
func ParseQuality(q string) (int, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" || q == "best" {
		return 0, nil
	}
	q = strings.TrimSuffix(q, "p")
	h, err := strconv.Atoi(q)
	if err != nil || h <= 0 {
		return 0, fmt.Errorf("quality must be a height such as 720 or \"best\"")
	}
	return h, nil
}
