package downloader

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// NFOWriter writes the metadata file for a finished job.
type NFOWriter interface {
	WriteNFO(ctx context.Context, payload *NFOPayload) error
}

// Executor runs the items of a job through their strategies.
type Executor struct {
	registry *Registry
	nfo      NFOWriter
	logger   zerolog.Logger
}

// NewExecutor creates an executor. nfo may be nil.
func NewExecutor(registry *Registry, nfo NFOWriter, logger zerolog.Logger) *Executor {
	return &Executor{
		registry: registry,
		nfo:      nfo,
		logger:   logger.With().Str("component", "job-executor").Logger(),
	}
}

// Execute runs the job's items in order, each owning an equal share of the
// reported progress. The job succeeds only if every item does; files
// already placed by earlier items are kept when a later one fails.
// Destinations that already exist are skipped, except for quality upgrades.
// Hard strategy failures are returned joined; they never stop later items.
// Cancellation stops the job and reports false without an error.
func (e *Executor) Execute(ctx context.Context, job *Job, progress ProgressFunc) (bool, error) {
	items := job.Items()
	e.logger.Info().Str("title", job.Title).Str("itemId", job.ItemID).Int("items", len(items)).Msg("Starting download job")

	success := true
	var hardErrs []error
	share := 100.0
	if len(items) > 0 {
		share = 100.0 / float64(len(items))
	}

	for i, item := range items {
		if ctx.Err() != nil {
			e.logger.Info().Str("title", job.Title).Msg("Download job cancelled")
			return false, nil
		}

		base := float64(i) * share
		log := e.logger.With().Str("type", string(item.Type)).Str("dest", item.DestinationPath).Logger()
		log.Info().Msg("Processing download item")

		if item.Type != TypeQualityUpgrade {
			if _, err := os.Stat(item.DestinationPath); err == nil {
				log.Debug().Msg("File already exists, skipping")
				progress.report(base + share)
				continue
			}
		}

		if err := os.MkdirAll(filepath.Dir(item.DestinationPath), 0o755); err != nil {
			log.Error().Err(err).Msg("Failed to create directory")
			success = false
			continue
		}

		strategy, err := e.registry.Resolve(item.Type)
		if err != nil {
			log.Error().Err(err).Msg("No strategy for download item")
			hardErrs = append(hardErrs, err)
			success = false
			continue
		}

		ok, err := strategy.Execute(ctx, item, job, progress.scaled(base, share))
		if err != nil {
			log.Error().Err(err).Msg("Download item aborted")
			hardErrs = append(hardErrs, err)
		}
		if !ok {
			success = false
			continue
		}
		progress.report(base + share)
	}

	if ctx.Err() != nil {
		return false, nil
	}

	if success {
		progress.report(100)
		e.writeNFO(ctx, job)
	}
	return success, errors.Join(hardErrs...)
}

func (e *Executor) writeNFO(ctx context.Context, job *Job) {
	if job.NFO == nil || e.nfo == nil {
		return
	}
	if _, err := os.Stat(job.NFO.FilePath); err == nil {
		return
	}
	if err := e.nfo.WriteNFO(ctx, job.NFO); err != nil {
		e.logger.Error().Err(err).Str("path", job.NFO.FilePath).Msg("Failed to write NFO file")
	}
}
