package ffmpeg

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ProbeInfo describes a media source.
type ProbeInfo struct {
	Path     string        `json:"path"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Duration time.Duration `json:"duration"`
	FileSize int64         `json:"fileSize"`
}

// Valid reports whether all four measurements are present. Partial results
// must not be used for quality decisions.
func (p *ProbeInfo) Valid() bool {
	return p != nil && p.Width > 0 && p.Height > 0 && p.Duration > 0 && p.FileSize > 0
}

// ProbeArgs builds the prober arguments.
func ProbeArgs(target string) []string {
	return []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,duration:format=duration,size",
		"-of", "json",
		target,
	}
}

type probeOutput struct {
	Streams []struct {
		Width    int    `json:"width"`
		Height   int    `json:"height"`
		Duration string `json:"duration"`
	} `json:"streams"`
	Format *struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

// Probe inspects a local file, a .strm pointer file or a remote URL.
// It returns nil when no video stream is found, the output is malformed,
// the prober fails or the remote target is rejected.
func (s *Service) Probe(ctx context.Context, target string) *ProbeInfo {
	if s.ffprobe == "" || strings.TrimSpace(target) == "" {
		return nil
	}

	source := target
	if strings.EqualFold(filepath.Ext(target), ".strm") && fileExists(target) {
		data, err := os.ReadFile(target)
		if err != nil {
			s.logger.Error().Err(err).Str("path", target).Msg("failed to read pointer file")
			return nil
		}
		source = strings.TrimSpace(string(data))
	}

	if !fileExists(source) {
		if err := s.validate(ctx, source); err != nil {
			s.logger.Error().Err(err).Str("target", source).Msg("refusing to probe remote source")
			return nil
		}
	}

	res, err := s.supervisor.Run(ctx, s.ffprobe, ProbeArgs(source), nil)
	if err != nil || !res.Success() {
		return nil
	}

	info := parseProbe(res.Stdout, source)
	if info == nil {
		s.logger.Warn().Str("target", source).Msg("no video stream in probe output")
	}
	return info
}

// parseProbe maps prober JSON onto a ProbeInfo, falling back from stream to
// container fields and finally to a stat of a local target for the size.
func parseProbe(data []byte, target string) *ProbeInfo {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil || len(out.Streams) == 0 {
		return nil
	}

	stream := out.Streams[0]
	info := &ProbeInfo{
		Path:   target,
		Width:  stream.Width,
		Height: stream.Height,
	}

	if d, ok := parseSeconds(stream.Duration); ok {
		info.Duration = d
	} else if out.Format != nil {
		if d, ok := parseSeconds(out.Format.Duration); ok {
			info.Duration = d
		}
	}

	if out.Format != nil {
		if size, err := strconv.ParseInt(out.Format.Size, 10, 64); err == nil {
			info.FileSize = size
		}
	}
	if info.FileSize == 0 {
		if st, err := os.Stat(target); err == nil && st.Mode().IsRegular() {
			info.FileSize = st.Size()
		}
	}
	return info
}

func parseSeconds(s string) (time.Duration, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return time.Duration(f * float64(time.Second)), true
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}
