package downloader

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mediathekdl/mediathekdl/internal/ffmpeg"
	"github.com/mediathekdl/mediathekdl/internal/transfer"
)

// ErrNoStrategy is returned for an item type without a registered strategy.
var ErrNoStrategy = errors.New("no strategy registered for download type")

// ProgressFunc receives progress in percent (0-100).
type ProgressFunc func(percent float64)

func (p ProgressFunc) report(v float64) {
	if p != nil {
		p(v)
	}
}

// scaled maps 0-100 onto [from, from+span].
func (p ProgressFunc) scaled(from, span float64) ProgressFunc {
	if p == nil {
		return nil
	}
	return func(v float64) { p(from + v*span/100) }
}

// Strategy materializes one item. A false result without error is an
// ordinary failure that has already been logged. Errors are reserved for
// failures that must abort the strategy visibly, such as a rejected source
// or a broken file swap.
type Strategy interface {
	Execute(ctx context.Context, item Item, job *Job, progress ProgressFunc) (bool, error)
}

// Transferer moves bytes and writes pointer files.
type Transferer interface {
	Download(ctx context.Context, rawURL, dest string, progress transfer.ProgressFunc) bool
	WriteStreamingURL(ctx context.Context, rawURL, dest string) bool
}

// Encoder runs the external media encoder.
type Encoder interface {
	ExtractAudio(ctx context.Context, input, output, language string, progress ffmpeg.ProgressFunc) (bool, error)
	ExtractAudioFromURL(ctx context.Context, url, output, language string, disp ffmpeg.AudioDisposition, progress ffmpeg.ProgressFunc) (bool, error)
	DownloadStream(ctx context.Context, url, output string, progress ffmpeg.ProgressFunc) (bool, error)
}

// Deps are the collaborators shared by the strategies.
type Deps struct {
	Transfer Transferer
	Encoder  Encoder
	Temp     *TempPlacer

	// DirectAudioExtraction extracts audio straight from the remote source
	// instead of downloading the full video first.
	DirectAudioExtraction bool
	// DefaultLanguage is the language that does not get the "original"
	// disposition.
	DefaultLanguage string

	Logger zerolog.Logger
}

// NewStrategies builds one strategy per acquisition type.
func NewStrategies(deps Deps) map[Type]Strategy {
	if deps.Temp == nil {
		deps.Temp = NewTempPlacer("", deps.Logger)
	}
	if deps.DefaultLanguage == "" {
		deps.DefaultLanguage = "deu"
	}
	return map[Type]Strategy{
		TypeDirect:          &directStrategy{deps: deps, logger: componentLogger(deps.Logger, "direct")},
		TypeStreamingURL:    &streamingURLStrategy{deps: deps, logger: componentLogger(deps.Logger, "streaming-url")},
		TypeAudioExtraction: &audioStrategy{deps: deps, logger: componentLogger(deps.Logger, "audio-extraction")},
		TypeStream:          &streamStrategy{deps: deps, logger: componentLogger(deps.Logger, "stream")},
		TypeQualityUpgrade:  &upgradeStrategy{deps: deps, logger: componentLogger(deps.Logger, "quality-upgrade")},
	}
}

func componentLogger(logger zerolog.Logger, strategy string) zerolog.Logger {
	return logger.With().Str("component", "downloader").Str("strategy", strategy).Logger()
}

// Registry resolves item types to strategies.
type Registry struct {
	strategies map[Type]Strategy
}

// NewRegistry checks that every known type has exactly one strategy and
// that no unknown type is registered.
func NewRegistry(strategies map[Type]Strategy) (*Registry, error) {
	for _, t := range Types {
		if strategies[t] == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoStrategy, t)
		}
	}
	for t := range strategies {
		if !t.Valid() {
			return nil, fmt.Errorf("unknown download type %q", t)
		}
	}
	copied := make(map[Type]Strategy, len(strategies))
	for t, s := range strategies {
		copied[t] = s
	}
	return &Registry{strategies: copied}, nil
}

// Resolve returns the strategy for t.
func (r *Registry) Resolve(t Type) (Strategy, error) {
	s, ok := r.strategies[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoStrategy, t)
	}
	return s, nil
}

type directStrategy struct {
	deps   Deps
	logger zerolog.Logger
}

func (s *directStrategy) Execute(ctx context.Context, item Item, job *Job, progress ProgressFunc) (bool, error) {
	s.logger.Info().Str("title", job.Title).Str("dest", item.DestinationPath).Msg("Downloading file")
	return s.deps.Transfer.Download(ctx, item.SourceURL, item.DestinationPath, transfer.ProgressFunc(progress)), nil
}

type streamingURLStrategy struct {
	deps   Deps
	logger zerolog.Logger
}

func (s *streamingURLStrategy) Execute(ctx context.Context, item Item, job *Job, progress ProgressFunc) (bool, error) {
	s.logger.Info().Str("title", job.Title).Str("dest", item.DestinationPath).Msg("Writing streaming url file")
	ok := s.deps.Transfer.WriteStreamingURL(ctx, item.SourceURL, item.DestinationPath)
	if ok {
		progress.report(100)
	}
	return ok, nil
}

type streamStrategy struct {
	deps   Deps
	logger zerolog.Logger
}

func (s *streamStrategy) Execute(ctx context.Context, item Item, job *Job, progress ProgressFunc) (bool, error) {
	s.logger.Info().Str("title", job.Title).Str("dest", item.DestinationPath).Msg("Muxing segmented stream")
	ok, err := s.deps.Encoder.DownloadStream(ctx, item.SourceURL, item.DestinationPath, ffmpeg.ProgressFunc(progress))
	if !ok {
		// the encoder writes in place; drop whatever it left behind
		removeTemp(s.logger, item.DestinationPath)
	}
	return ok, err
}
