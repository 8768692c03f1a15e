package downloader

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/latest/yt-dlp_linux", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/assets/yt-dlp_linux", http.StatusFound)
	})
	mux.HandleFunc("/assets/yt-dlp_linux", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("binary"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := NewHTTPDownloader(5 * time.Second)
	body, err := d.Download(context.Background(), srv.URL+"/latest/yt-dlp_linux")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "binary", string(data))
}

func TestDownloadRejectsNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewHTTPDownloaderWithClient(srv.Client())
	_, err := d.Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
