package ytdlp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipforge/internal/adapters/downloader"
	"clipforge/internal/core/domain"
)

func newTestProvisioner(t *testing.T, releaseURL string) (*Provisioner, string) {
	t.Helper()
	dir := t.TempDir()
	p := NewProvisioner(ProvisionerConfig{
		BinDir:     dir,
		ReleaseURL: releaseURL,
		GOOS:       "linux",
		GOARCH:     "amd64",
	}, downloader.NewHTTPDownloader(10*time.Second), hclog.NewNullLogger())
	return p, dir
}

func TestProvisionerConcurrentCallersShareOneDownload(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/yt-dlp_linux", r.URL.Path)
		time.Sleep(100 * time.Millisecond)
		_, _ = w.Write([]byte("#!/bin/sh\necho yt-dlp\n"))
	}))
	defer srv.Close()

	p, dir := newTestProvisioner(t, srv.URL)
	assert.False(t, p.Binary().Ready)

	const callers = 16
	var wg sync.WaitGroup
	results := make([]domain.ToolBinary, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.EnsureReady(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
	want := filepath.Join(dir, "yt-dlp")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.True(t, results[i].Ready)
		assert.Equal(t, want, results[i].Path)
	}

	info, err := os.Stat(want)
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	}

	leftovers, err := filepath.Glob(filepath.Join(dir, "yt-dlp.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	// Already provisioned: no further downloads.
	_, err = p.EnsureReady(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestProvisionerExistingBinarySkipsDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected download of %s", r.URL.Path)
	}))
	defer srv.Close()

	p, dir := newTestProvisioner(t, srv.URL)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "yt-dlp"), []byte("x"), 0o755))

	bin, err := p.EnsureReady(context.Background())
	require.NoError(t, err)
	assert.True(t, bin.Ready)
}

func TestProvisionerFailureCleansUpAndAllowsRetry(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if fail.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("bin"))
	}))
	defer srv.Close()

	p, dir := newTestProvisioner(t, srv.URL)

	const callers = 4
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.EnsureReady(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.Error(t, err)
		assert.Equal(t, domain.KindProvisioning, domain.KindOf(err))
	}
	assert.False(t, p.Binary().Ready)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial downloads must be removed")

	failedHits := hits.Load()
	fail.Store(false)
	bin, err := p.EnsureReady(context.Background())
	require.NoError(t, err)
	assert.True(t, bin.Ready)
	assert.Equal(t, failedHits+1, hits.Load())
}

func TestProvisionerConfiguredBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script as the binary")
	}
	script := filepath.Join(t.TempDir(), "my-yt-dlp")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"), 0o755))

	p := NewProvisioner(ProvisionerConfig{BinaryPath: script}, downloader.NewHTTPDownloader(time.Second), nil)
	bin, err := p.EnsureReady(context.Background())
	require.NoError(t, err)
	assert.Equal(t, script, bin.Path)

	missing := NewProvisioner(ProvisionerConfig{BinaryPath: filepath.Join(t.TempDir(), "nope")}, downloader.NewHTTPDownloader(time.Second), nil)
	_, err = missing.EnsureReady(context.Background())
	assert.Equal(t, domain.KindProvisioning, domain.KindOf(err))
}

func TestReleaseAsset(t *testing.T) {
	assert.Equal(t, "yt-dlp.exe", releaseAsset("windows", "amd64"))
	assert.Equal(t, "yt-dlp_macos", releaseAsset("darwin", "arm64"))
	assert.Equal(t, "yt-dlp_linux", releaseAsset("linux", "amd64"))
	assert.Equal(t, "yt-dlp_linux_aarch64", releaseAsset("linux", "arm64"))
	assert.Equal(t, "yt-dlp.exe", binaryName("windows"))
	assert.Equal(t, "yt-dlp", binaryName("linux"))
}
