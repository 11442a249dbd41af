package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNotConfigured is returned when the required binary could not be found.
var ErrNotConfigured = errors.New("ffmpeg binary not found")

// ErrURLRejected is returned when a remote input fails validation without
// a more specific error.
var ErrURLRejected = errors.New("remote url rejected")

// URLValidator checks remote inputs before they are handed to a subprocess.
// A false result without error means the resource does not exist.
type URLValidator interface {
	ValidateURL(ctx context.Context, rawURL string) (bool, error)
}

// Config holds binary locations. Empty paths are searched for.
type Config struct {
	FFmpegPath  string
	FFprobePath string
}

// AudioDisposition selects the stream disposition flags of an extracted track.
type AudioDisposition struct {
	Original       bool
	VisualImpaired bool
}

func (d AudioDisposition) String() string {
	var parts []string
	if d.Original {
		parts = append(parts, "original")
	}
	if d.VisualImpaired {
		parts = append(parts, "visual_impaired")
	}
	return strings.Join(parts, "+")
}

// Service builds encoder and prober invocations and runs them through
// a Supervisor.
type Service struct {
	supervisor *Supervisor
	validator  URLValidator
	ffmpeg     string
	ffprobe    string
	logger     zerolog.Logger
}

// NewService resolves the binaries and creates a service.
func NewService(cfg Config, supervisor *Supervisor, validator URLValidator, logger zerolog.Logger) *Service {
	s := &Service{
		supervisor: supervisor,
		validator:  validator,
		ffmpeg:     findExecutable("ffmpeg", cfg.FFmpegPath),
		ffprobe:    findExecutable("ffprobe", cfg.FFprobePath),
		logger:     logger.With().Str("component", "ffmpeg").Logger(),
	}

	if s.ffmpeg == "" {
		s.logger.Warn().Msg("ffmpeg not found, audio extraction and stream downloads are unavailable")
	} else {
		s.logger.Info().Str("path", s.ffmpeg).Msg("using ffmpeg")
	}
	if s.ffprobe == "" {
		s.logger.Warn().Msg("ffprobe not found, quality probing is unavailable")
	}
	return s
}

// Available reports whether the encoder was found.
func (s *Service) Available() bool {
	return s.ffmpeg != ""
}

// ExtractAudioArgs builds the local-input audio extraction arguments.
func ExtractAudioArgs(input, output, language string) []string {
	return []string{
		"-i", input,
		"-vn",
		"-acodec", "copy",
		"-metadata:s:a:0", "language=" + language,
		"-y", output,
	}
}

// ExtractAudioFromURLArgs builds the remote-input audio extraction arguments.
func ExtractAudioFromURLArgs(url, output, language string, disp AudioDisposition) []string {
	args := []string{
		"-i", url,
		"-vn",
		"-acodec", "copy",
		"-metadata:s:a:0", "language=" + language,
	}
	if d := disp.String(); d != "" {
		args = append(args, "-disposition:a:0", d)
	}
	return append(args, "-f", "matroska", "-y", output)
}

// DownloadStreamArgs builds the segmented-stream muxing arguments.
func DownloadStreamArgs(url, output string) []string {
	return []string{
		"-protocol_whitelist", "file,http,https,tcp,tls",
		"-i", url,
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		"-y", output,
	}
}

// ExtractAudio copies the audio track of a local file into output.
func (s *Service) ExtractAudio(ctx context.Context, input, output, language string, progress ProgressFunc) (bool, error) {
	s.logger.Info().Str("input", input).Str("output", output).Str("language", language).Msg("extracting audio")
	return s.runEncoder(ctx, ExtractAudioArgs(input, output, language), progress)
}

// ExtractAudioFromURL copies only the audio track of a remote video into a
// Matroska file. The URL is validated first; a policy violation is returned
// as an error.
func (s *Service) ExtractAudioFromURL(ctx context.Context, url, output, language string, disp AudioDisposition, progress ProgressFunc) (bool, error) {
	if err := s.validate(ctx, url); err != nil {
		return false, err
	}
	s.logger.Info().Str("url", url).Str("output", output).Str("language", language).Msg("extracting audio from remote source")
	return s.runEncoder(ctx, ExtractAudioFromURLArgs(url, output, language, disp), progress)
}

// DownloadStream muxes a segmented stream into output.
func (s *Service) DownloadStream(ctx context.Context, url, output string, progress ProgressFunc) (bool, error) {
	if err := s.validate(ctx, url); err != nil {
		return false, err
	}
	s.logger.Info().Str("url", url).Str("output", output).Msg("downloading segmented stream")
	return s.runEncoder(ctx, DownloadStreamArgs(url, output), progress)
}

func (s *Service) runEncoder(ctx context.Context, args []string, progress ProgressFunc) (bool, error) {
	if s.ffmpeg == "" {
		return false, ErrNotConfigured
	}
	res, err := s.supervisor.Run(ctx, s.ffmpeg, args, progress)
	if err != nil {
		return false, err
	}
	return res.Success(), nil
}

func (s *Service) validate(ctx context.Context, url string) error {
	if s.validator == nil {
		return nil
	}
	ok, err := s.validator.ValidateURL(ctx, url)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrURLRejected, url)
	}
	return nil
}
