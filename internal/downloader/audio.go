package downloader

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mediathekdl/mediathekdl/internal/ffmpeg"
	"github.com/mediathekdl/mediathekdl/internal/transfer"
)

// Legacy mode reports the download as the first 80% of the item.
const legacyDownloadShare = 80.0

type audioStrategy struct {
	deps   Deps
	logger zerolog.Logger
}

func (s *audioStrategy) Execute(ctx context.Context, item Item, job *Job, progress ProgressFunc) (bool, error) {
	s.logger.Info().Str("title", job.Title).Str("dest", item.DestinationPath).
		Bool("direct", s.deps.DirectAudioExtraction).Msg("Extracting audio track")
	if s.deps.DirectAudioExtraction {
		return s.extractRemote(ctx, item, job.VideoInfo, progress)
	}
	return s.downloadThenExtract(ctx, item, job.VideoInfo.Language, progress)
}

// extractRemote pulls only the audio track from the remote source into a
// temp file and renames it into place.
func (s *audioStrategy) extractRemote(ctx context.Context, item Item, info VideoInfo, progress ProgressFunc) (bool, error) {
	tmp := s.deps.Temp.Path(item.DestinationPath, ".mka")
	defer removeTemp(s.logger, tmp)

	disp := ffmpeg.AudioDisposition{
		Original:       info.Language != s.deps.DefaultLanguage,
		VisualImpaired: info.AudioDescription,
	}
	ok, err := s.deps.Encoder.ExtractAudioFromURL(ctx, item.SourceURL, tmp, info.Language, disp, ffmpeg.ProgressFunc(progress))
	if err != nil || !ok {
		return false, err
	}

	if err := moveFile(tmp, item.DestinationPath); err != nil {
		s.logger.Error().Err(err).Str("dest", item.DestinationPath).Msg("Failed to move extracted audio into place")
		return false, nil
	}
	return true, nil
}

// downloadThenExtract downloads the whole video, then copies its audio
// track out locally. The temp video is always removed.
func (s *audioStrategy) downloadThenExtract(ctx context.Context, item Item, language string, progress ProgressFunc) (bool, error) {
	tmp := s.deps.Temp.Path(item.DestinationPath, ".mkv")
	defer removeTemp(s.logger, tmp)

	if !s.deps.Transfer.Download(ctx, item.SourceURL, tmp, transfer.ProgressFunc(progress.scaled(0, legacyDownloadShare))) {
		s.logger.Error().Str("dest", item.DestinationPath).Msg("Failed to download temporary video")
		return false, nil
	}
	progress.report(legacyDownloadShare)

	ok, err := s.deps.Encoder.ExtractAudio(ctx, tmp, item.DestinationPath, language,
		ffmpeg.ProgressFunc(progress.scaled(legacyDownloadShare, 100-legacyDownloadShare)))
	if !ok {
		removeTemp(s.logger, item.DestinationPath)
	}
	return ok, err
}
