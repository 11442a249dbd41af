package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const copyBufferSize = 8 * 1024

// DefaultMinFreeSpace is kept free on the destination volume.
const DefaultMinFreeSpace int64 = 1536 * 1024 * 1024

// ProgressFunc receives transfer progress in percent (0-100).
type ProgressFunc func(percent float64)

// Config configures a Downloader.
type Config struct {
	BytesPerSecond int64
	MinFreeSpace   int64
}

// Downloader copies remote files to disk.
type Downloader struct {
	policy     *Policy
	httpClient *http.Client
	cfg        Config
	logger     zerolog.Logger

	// freeSpace is swapped in tests.
	freeSpace func(dir string) (int64, error)
}

// NewDownloader creates a downloader. A nil client gets a client without an
// overall timeout; transfers are bounded by the caller's context.
func NewDownloader(policy *Policy, client *http.Client, cfg Config, logger zerolog.Logger) *Downloader {
	if client == nil {
		client = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: 60 * time.Second,
		}}
	}
	if cfg.MinFreeSpace <= 0 {
		cfg.MinFreeSpace = DefaultMinFreeSpace
	}
	return &Downloader{
		policy:     policy,
		httpClient: client,
		cfg:        cfg,
		logger:     logger.With().Str("component", "file-downloader").Logger(),
		freeSpace:  freeSpace,
	}
}

// Download fetches rawURL into dest. Failures and cancellation are logged and
// reported as false; a partially written dest is removed.
func (d *Downloader) Download(ctx context.Context, rawURL, dest string, progress ProgressFunc) bool {
	if err := d.download(ctx, rawURL, dest, progress); err != nil {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			d.logger.Info().Str("url", rawURL).Str("dest", dest).Msg("Download cancelled")
		default:
			d.logger.Error().Err(err).Str("url", rawURL).Str("dest", dest).Msg("Download failed")
		}
		return false
	}
	return true
}

func (d *Downloader) download(ctx context.Context, rawURL, dest string, progress ProgressFunc) error {
	if strings.TrimSpace(rawURL) == "" || strings.TrimSpace(dest) == "" {
		return errors.New("url and destination are required")
	}
	u, err := d.policy.Check(rawURL)
	if err != nil {
		return err
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := d.ensureSpace(dir, 0); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	total := resp.ContentLength
	if total > 0 {
		if err := d.ensureSpace(dir, total); err != nil {
			return err
		}
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}

	w := &progressWriter{w: f, total: total, progress: progress}
	_, copyErr := io.CopyBuffer(w, newThrottledReader(ctx, resp.Body, d.cfg.BytesPerSecond), make([]byte, copyBufferSize))
	closeErr := f.Close()
	if copyErr == nil && ctx.Err() != nil {
		copyErr = ctx.Err()
	}
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		if rmErr := os.Remove(dest); rmErr != nil && !os.IsNotExist(rmErr) {
			d.logger.Warn().Err(rmErr).Str("path", dest).Msg("Failed to remove partial download")
		}
		return copyErr
	}

	// Chunked responses carry no length; finish the sink explicitly.
	if total <= 0 && progress != nil {
		progress(100)
	}
	d.logger.Debug().Str("dest", dest).Int64("bytes", w.written).Msg("Download complete")
	return nil
}

// ensureSpace requires MinFreeSpace plus needed bytes on dir's volume. An
// unreadable volume is logged and allowed.
func (d *Downloader) ensureSpace(dir string, needed int64) error {
	free, err := d.freeSpace(dir)
	if err != nil {
		d.logger.Warn().Err(err).Str("dir", dir).Msg("Could not determine free disk space")
		return nil
	}
	if free < needed+d.cfg.MinFreeSpace {
		return fmt.Errorf("%w: %d bytes free, %d required", ErrInsufficientSpace, free, needed+d.cfg.MinFreeSpace)
	}
	return nil
}

// WriteStreamingURL writes a pointer file containing only rawURL.
func (d *Downloader) WriteStreamingURL(ctx context.Context, rawURL, dest string) bool {
	if err := ctx.Err(); err != nil {
		return false
	}
	if strings.TrimSpace(rawURL) == "" || strings.TrimSpace(dest) == "" {
		d.logger.Error().Str("url", rawURL).Str("dest", dest).Msg("Streaming url file needs url and destination")
		return false
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		d.logger.Error().Err(err).Str("dest", dest).Msg("Failed to create directory for streaming url file")
		return false
	}
	if err := os.WriteFile(dest, []byte(rawURL), 0o644); err != nil {
		d.logger.Error().Err(err).Str("dest", dest).Msg("Failed to write streaming url file")
		return false
	}
	return true
}

type progressWriter struct {
	w        io.Writer
	total    int64
	written  int64
	progress ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if p.progress != nil && p.total > 0 {
		p.progress(float64(p.written) / float64(p.total) * 100)
	}
	return n, err
}
