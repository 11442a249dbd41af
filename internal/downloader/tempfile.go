package downloader

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TempSuffix marks files this program writes while a transfer is in flight.
const TempSuffix = ".mvdl-tmp"

// TempPlacer picks collision-free temp file paths.
type TempPlacer struct {
	configured string
	systemTemp string
	logger     zerolog.Logger
}

// NewTempPlacer uses configured when set, otherwise the destination's
// directory, otherwise the system temp dir.
func NewTempPlacer(configured string, logger zerolog.Logger) *TempPlacer {
	return &TempPlacer{
		configured: strings.TrimSpace(configured),
		systemTemp: os.TempDir(),
		logger:     logger.With().Str("component", "temp-files").Logger(),
	}
}

// Path returns "<dir>/<uuid><ext>.mvdl-tmp" for a transfer headed to dest.
func (p *TempPlacer) Path(dest, ext string) string {
	return filepath.Join(p.dir(dest), uuid.NewString()+ext+TempSuffix)
}

func (p *TempPlacer) dir(dest string) string {
	if p.configured != "" {
		err := os.MkdirAll(p.configured, 0o755)
		if err == nil {
			return p.configured
		}
		p.logger.Error().Err(err).Str("dir", p.configured).Msg("Could not create configured temp directory, falling back")
	}

	if strings.TrimSpace(dest) != "" {
		if dir := filepath.Dir(dest); dir != "" && dir != "." {
			err := os.MkdirAll(dir, 0o755)
			if err == nil {
				return dir
			}
			p.logger.Error().Err(err).Str("dir", dir).Msg("Could not create destination directory for temp file, falling back")
		}
	}

	return p.systemTemp
}

// Dirs returns the directories temp files may have been placed in, besides
// destination directories.
func (p *TempPlacer) Dirs() []string {
	if p.configured != "" {
		return []string{p.configured, p.systemTemp}
	}
	return []string{p.systemTemp}
}

// removeTemp deletes a temp file, ignoring a missing one.
func removeTemp(logger zerolog.Logger, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Str("path", path).Msg("Failed to delete temporary file")
	}
}

// CleanupTempFiles walks dirs and removes *.mvdl-tmp files last modified
// more than minAge ago. A zero minAge removes all of them, which is only
// safe before any transfer has started. Duplicate and missing dirs are
// skipped. It returns the number of deleted files.
func CleanupTempFiles(ctx context.Context, logger zerolog.Logger, minAge time.Duration, dirs ...string) int {
	cutoff := time.Now().Add(-minAge)
	seen := make(map[string]struct{}, len(dirs))
	deleted := 0

	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			abs = dir
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(abs); err != nil {
			continue
		}

		walkErr := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("Skipping unreadable path")
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), TempSuffix) {
				return nil
			}
			if minAge > 0 {
				info, err := d.Info()
				if err != nil || info.ModTime().After(cutoff) {
					return nil
				}
			}
			if err := os.Remove(path); err != nil {
				logger.Warn().Err(err).Str("file", path).Msg("Failed to delete temporary file")
				return nil
			}
			deleted++
			logger.Info().Str("file", path).Msg("Deleted temporary file")
			return nil
		})
		if walkErr != nil && ctx.Err() == nil {
			logger.Error().Err(walkErr).Str("dir", abs).Msg("Error scanning directory for temporary files")
		}
		if ctx.Err() != nil {
			break
		}
	}

	logger.Info().Int("deleted", deleted).Msg("Temporary file cleanup finished")
	return deleted
}
