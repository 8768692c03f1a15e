package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClipRequestDecodesNumbersAndTimeStrings(t *testing.T) {
	var req ClipRequest
	err := json.Unmarshal([]byte(`{"url":"https://youtu.be/abc123","start":"1:30","end":105.5,"quality":"720"}`), &req)
	require.NoError(t, err)

	start, end := req.Range()
	assert.Equal(t, Seconds(90), start)
	assert.Equal(t, Seconds(105.5), end)
	assert.Equal(t, "720", req.Quality)
}

func TestClipRequestMissingFieldsStayNil(t *testing.T) {
	var req ClipRequest
	require.NoError(t, json.Unmarshal([]byte(`{"url":"x","start":0}`), &req))
	require.NotNil(t, req.Start)
	assert.Equal(t, Seconds(0), *req.Start)
	assert.Nil(t, req.End)
}

func TestClipRequestRejectsGarbageTime(t *testing.T) {
	var req ClipRequest
	assert.Error(t, json.Unmarshal([]byte(`{"start":"soon"}`), &req))
	assert.Error(t, json.Unmarshal([]byte(`{"start":true}`), &req))
}

func TestSecondsArg(t *testing.T) {
	assert.Equal(t, "30", Seconds(30).Arg())
	assert.Equal(t, "12.500", Seconds(12.5).Arg())
}

func TestProgressEventWireShape(t *testing.T) {
	cases := []struct {
		ev   ProgressEvent
		want string
	}{
		{Processing(0, "Downloading and processing..."), `{"status":"processing","percent":0,"detail":"Downloading and processing..."}`},
		{ProgressEvent{Status: StatusComplete, FilePath: "/tmp/a.mp4", DownloadURL: "/api/download?id=a"}, `{"status":"complete","filePath":"/tmp/a.mp4","downloadUrl":"/api/download?id=a"}`},
		{ProgressEvent{Status: StatusError, Error: "boom"}, `{"status":"error","error":"boom"}`},
	}
	for _, tc := range cases {
		b, err := json.Marshal(tc.ev)
		require.NoError(t, err)
		assert.JSONEq(t, tc.want, string(b))
	}
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("exit status 1: /tmp/clipforge/clips/x.mp4 missing")
	err := fmt.Errorf("wrapped: %w", NewExtractionError("", cause))

	assert.Equal(t, KindExtraction, KindOf(err))
	assert.Equal(t, "clip extraction failed", PublicMessage(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrorKind(""), KindOf(cause))
	assert.Equal(t, "internal error", PublicMessage(cause))
}

func TestClipJobTransitions(t *testing.T) {
	job := &ClipJob{ID: "j", Phase: PhaseExtracting, Percent: 40}
	job.MarkComplete("/tmp/j.mp4")
	assert.Equal(t, PhaseComplete, job.Phase)
	assert.Equal(t, float64(100), job.Percent)
	assert.False(t, job.CompletedAt.IsZero())

	failed := &ClipJob{ID: "k"}
	failed.MarkFailed(NewCancelledError(nil))
	assert.Equal(t, PhaseFailed, failed.Phase)
	assert.Equal(t, KindCancelled, KindOf(failed.Err))
}

func TestParseQuality(t *testing.T) {
	for in, want := range map[string]int{"": 0, "best": 0, "BEST": 0, "720": 720, "1080p": 1080, " 480 ": 480} {
		got, err := ParseQuality(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"hd", "-1", "0", "720x"} {
		_, err := ParseQuality(in)
		assert.Error(t, err, in)
	}
}
