package transfer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediathekdl/mediathekdl/internal/testutil"
)

func newTestDownloader(cfg Config) *Downloader {
	d := NewDownloader(NewPolicy(true, true, nil), nil, cfg, testutil.NopLogger())
	d.freeSpace = func(string) (int64, error) { return 1 << 40, nil }
	return d
}

func TestDownloader_Download(t *testing.T) {
	body := strings.Repeat("a", 20_000)

	tests := []struct {
		name          string
		contentLength bool
	}{
		{name: "known length", contentLength: true},
		{name: "chunked", contentLength: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.contentLength {
					w.Header().Set("Content-Length", strconv.Itoa(len(body)))
				}
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			dest := filepath.Join(t.TempDir(), "nested", "video.mp4")
			var reports []float64
			ok := newTestDownloader(Config{}).Download(context.Background(), srv.URL, dest, func(p float64) {
				reports = append(reports, p)
			})
			require.True(t, ok)

			data, err := os.ReadFile(dest)
			require.NoError(t, err)
			assert.Equal(t, body, string(data))
			require.NotEmpty(t, reports)
			assert.InDelta(t, 100, reports[len(reports)-1], 0.001)
		})
	}
}

func TestDownloader_HTTPErrorLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "video.mp4")
	assert.False(t, newTestDownloader(Config{}).Download(context.Background(), srv.URL, dest, nil))
	assert.NoFileExists(t, dest)
}

func TestDownloader_RejectsDisallowedDomain(t *testing.T) {
	d := NewDownloader(NewPolicy(true, false, []string{"zdf.de"}), nil, Config{}, testutil.NopLogger())
	dest := filepath.Join(t.TempDir(), "video.mp4")
	assert.False(t, d.Download(context.Background(), "https://example.com/v.mp4", dest, nil))
	assert.False(t, d.Download(context.Background(), "", dest, nil))
}

func TestDownloader_InsufficientSpace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected when the disk is full")
	}))
	defer srv.Close()

	d := newTestDownloader(Config{MinFreeSpace: 100})
	d.freeSpace = func(string) (int64, error) { return 10, nil }

	err := d.download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "v.mp4"), nil)
	assert.True(t, errors.Is(err, ErrInsufficientSpace))
}

func TestDownloader_CancelRemovesPartialFile(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		_, _ = w.Write([]byte(strings.Repeat("b", 1000)))
		w.(http.Flusher).Flush()
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	dest := filepath.Join(t.TempDir(), "partial.mp4")
	assert.False(t, newTestDownloader(Config{}).Download(ctx, srv.URL, dest, nil))
	assert.NoFileExists(t, dest)
}

func TestDownloader_Throttled(t *testing.T) {
	body := strings.Repeat("c", 3000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "slow.mp4")
	start := time.Now()
	require.True(t, newTestDownloader(Config{BytesPerSecond: 1000}).Download(context.Background(), srv.URL, dest, nil))

	// first second is covered by the burst
	assert.GreaterOrEqual(t, time.Since(start), 1500*time.Millisecond)
}

func TestDownloader_WriteStreamingURL(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "show", "episode.strm")
	d := newTestDownloader(Config{})

	require.True(t, d.WriteStreamingURL(context.Background(), "https://zdf.de/master.m3u8", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "https://zdf.de/master.m3u8", string(data))

	assert.False(t, d.WriteStreamingURL(context.Background(), "", dest))
}
