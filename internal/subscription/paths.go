package subscription

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mediathekdl/mediathekdl/internal/downloader"
	"github.com/mediathekdl/mediathekdl/internal/mediathek"
)

const (
	extVideo = ".mkv"
	extAudio = ".mka"
	extStrm  = ".strm"
	extNFO   = ".nfo"
)

// Paths are the destinations of one video.
type Paths struct {
	Dir  string
	Base string // file name without extension
	Main string

	stem string // Base without the language suffix
}

// Subtitle returns the subtitle destination for the given format.
func (p Paths) Subtitle(lang string, t mediathek.SubtitleType) string {
	return filepath.Join(p.Dir, p.stem+"."+lang+t.Extension())
}

// NFO returns the metadata file next to the main file.
func (p Paths) NFO() string {
	return filepath.Join(p.Dir, p.Base+extNFO)
}

// pathBuilder lays out a subscription's library folder.
type pathBuilder struct {
	defaultRoot     string
	defaultLanguage string
}

// audioOnly reports whether the main file is the extracted audio track.
func (b pathBuilder) audioOnly(sub *Subscription, info *downloader.VideoInfo) bool {
	switch sub.Download.Mode {
	case ModeAudio:
		return true
	case ModeStrm:
		return false
	}
	return info.Language != b.defaultLanguage && !sub.Download.FullVideoForSecondaryAudio
}

func (b pathBuilder) build(sub *Subscription, info *downloader.VideoInfo) Paths {
	dir := sub.Download.Path
	if dir == "" {
		dir = filepath.Join(b.defaultRoot, sanitize(sub.Name))
	}
	if info.Season != nil {
		dir = filepath.Join(dir, fmt.Sprintf("Staffel %d", *info.Season))
	}
	switch {
	case info.Trailer:
		dir = filepath.Join(dir, "trailers")
	case info.Interview:
		dir = filepath.Join(dir, "interviews")
	case !info.IsShow && sub.Series.TreatNonEpisodesAsExtras:
		dir = filepath.Join(dir, "extras")
	}

	stem := b.stem(sub, info)
	base := stem
	if info.Language != "" && info.Language != b.defaultLanguage {
		base += "." + info.Language
	}

	ext := extVideo
	switch {
	case sub.Download.Mode == ModeStrm:
		ext = extStrm
	case b.audioOnly(sub, info):
		ext = extAudio
	}

	return Paths{Dir: dir, Base: base, Main: filepath.Join(dir, base+ext), stem: stem}
}

func (b pathBuilder) stem(sub *Subscription, info *downloader.VideoInfo) string {
	var name string
	switch {
	case info.HasSeasonEpisode():
		name = fmt.Sprintf("S%02dE%02d - %s", *info.Season, *info.Episode, info.Title)
	case info.AbsoluteEpisode != nil && sub.Series.AllowAbsoluteNumbering:
		name = fmt.Sprintf("%03d - %s", *info.AbsoluteEpisode, info.Title)
	default:
		name = info.Title
	}
	if info.AudioDescription {
		name += " [AD]"
	}
	if info.SignLanguage {
		name += " [DGS]"
	}
	return sanitize(name)
}

// sanitize replaces characters that are invalid in file names on any
// supported platform.
func sanitize(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range name {
		switch {
		case r < 0x20, strings.ContainsRune(`<>:"/\|?*`, r):
			sb.WriteByte('_')
		default:
			sb.WriteRune(r)
		}
	}
	out := strings.TrimRight(strings.TrimSpace(sb.String()), ". ")
	if out == "" {
		return "_"
	}
	return out
}
