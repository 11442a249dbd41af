package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mediathekdl/mediathekdl/internal/transfer"
)

// ReplaceError is returned when swapping an upgraded file into place fails.
type ReplaceError struct {
	Path string
	Err  error
}

func (e *ReplaceError) Error() string {
	return fmt.Sprintf("failed to replace %s: %v", e.Path, e.Err)
}

func (e *ReplaceError) Unwrap() error {
	return e.Err
}

type upgradeStrategy struct {
	deps   Deps
	logger zerolog.Logger

	// removeBackup is os.Remove outside tests.
	removeBackup func(string) error
}

// Execute downloads the candidate and replaces the existing file only when
// the candidate is strictly larger.
func (s *upgradeStrategy) Execute(ctx context.Context, item Item, job *Job, progress ProgressFunc) (bool, error) {
	s.logger.Info().Str("title", job.Title).Str("dest", item.DestinationPath).Msg("Starting quality upgrade")

	tmp := s.deps.Temp.Path(item.DestinationPath, ".mkv")
	defer removeTemp(s.logger, tmp)

	if !s.deps.Transfer.Download(ctx, item.SourceURL, tmp, transfer.ProgressFunc(progress)) {
		return false, nil
	}

	target := item.fileToReplace()
	candidate, err := os.Stat(tmp)
	if err != nil {
		s.logger.Error().Err(err).Str("temp", tmp).Msg("Downloaded upgrade candidate is missing")
		return false, nil
	}
	existing, err := os.Stat(target)
	if err != nil {
		s.logger.Error().Err(err).Str("target", target).Msg("File to upgrade does not exist")
		return false, nil
	}

	if candidate.Size() <= existing.Size() {
		s.logger.Info().Str("target", target).Int64("existing", existing.Size()).Int64("candidate", candidate.Size()).
			Msg("Candidate is not larger than the existing file, skipping upgrade")
		return false, nil
	}

	s.logger.Info().Str("target", target).Str("dest", item.DestinationPath).Msg("Replacing file with higher quality version")

	if samePath(target, item.DestinationPath) {
		if err := s.swapInPlace(tmp, item.DestinationPath); err != nil {
			return false, &ReplaceError{Path: item.DestinationPath, Err: err}
		}
		return true, nil
	}

	if err := os.MkdirAll(filepath.Dir(item.DestinationPath), 0o755); err != nil {
		return false, &ReplaceError{Path: item.DestinationPath, Err: err}
	}
	if err := moveFile(tmp, item.DestinationPath); err != nil {
		return false, &ReplaceError{Path: item.DestinationPath, Err: err}
	}
	s.removeReplaced(target, item.DestinationPath)
	return true, nil
}

// removeReplaced deletes the file an upgrade superseded. The new file is
// already in place, so failures are only logged.
func (s *upgradeStrategy) removeReplaced(target, dest string) {
	err := os.Remove(target)
	switch {
	case err == nil:
		s.logger.Info().Str("old", target).Msg("Deleted old file after upgrade")
	case os.IsNotExist(err):
		s.logger.Debug().Str("old", target).Msg("Old file already gone after upgrade")
	default:
		s.logger.Warn().Err(err).Str("old", target).Str("dest", dest).
			Msg("Failed to delete old file, the new file is already in place")
	}
}

// swapInPlace moves dest aside, moves tmp into dest and drops the backup.
// If the second move fails the backup is restored. Until the backup is
// deleted the original content survives under "<dest>.<uuid>.bak".
func (s *upgradeStrategy) swapInPlace(tmp, dest string) error {
	backup := fmt.Sprintf("%s.%s.bak", dest, uuid.NewString())
	if err := os.Rename(dest, backup); err != nil {
		return fmt.Errorf("failed to back up original: %w", err)
	}
	if err := moveFile(tmp, dest); err != nil {
		if restoreErr := os.Rename(backup, dest); restoreErr != nil {
			s.logger.Error().Err(restoreErr).Str("backup", backup).Msg("Failed to restore original from backup")
		}
		return fmt.Errorf("failed to move upgrade into place: %w", err)
	}
	remove := s.removeBackup
	if remove == nil {
		remove = os.Remove
	}
	if err := remove(backup); err != nil {
		s.logger.Warn().Err(err).Str("backup", backup).Msg("Failed to delete backup after upgrade")
	}
	return nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		absA, absB = filepath.Clean(a), filepath.Clean(b)
	}
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return strings.EqualFold(absA, absB)
	}
	return absA == absB
}
