package subscription

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mediathekdl/mediathekdl/internal/downloader"
	"github.com/mediathekdl/mediathekdl/internal/mediathek"
)

func intPtr(v int) *int { return &v }

func TestPathBuilder_Build(t *testing.T) {
	b := pathBuilder{defaultRoot: "/lib", defaultLanguage: "deu"}

	t.Run("episode under season folder", func(t *testing.T) {
		sub := &Subscription{Name: "Krimi: Serie", Download: Download{Mode: ModeVideo}}
		info := &downloader.VideoInfo{Title: "Der Fall", Language: "deu", Season: intPtr(3), Episode: intPtr(5), IsShow: true}

		p := b.build(sub, info)
		assert.Equal(t, filepath.Join("/lib", "Krimi_ Serie", "Staffel 3"), p.Dir)
		assert.Equal(t, filepath.Join(p.Dir, "S03E05 - Der Fall.mkv"), p.Main)
		assert.Equal(t, filepath.Join(p.Dir, "S03E05 - Der Fall.nfo"), p.NFO())
		assert.Equal(t, filepath.Join(p.Dir, "S03E05 - Der Fall.deu.ttml"), p.Subtitle("deu", mediathek.SubtitleTTML))
	})

	t.Run("secondary language becomes audio track", func(t *testing.T) {
		sub := &Subscription{Name: "Serie", Download: Download{Path: "/shows/serie", Mode: ModeVideo}}
		info := &downloader.VideoInfo{Title: "Pilot", Language: "eng", Season: intPtr(1), Episode: intPtr(1), IsShow: true}

		p := b.build(sub, info)
		assert.Equal(t, filepath.Join("/shows/serie", "Staffel 1", "S01E01 - Pilot.eng.mka"), p.Main)
		assert.Equal(t, filepath.Join(p.Dir, "S01E01 - Pilot.eng.vtt"), p.Subtitle("eng", mediathek.SubtitleWebVTT))
	})

	t.Run("full video for secondary language", func(t *testing.T) {
		sub := &Subscription{Name: "Serie", Download: Download{Path: "/s", Mode: ModeVideo, FullVideoForSecondaryAudio: true}}
		info := &downloader.VideoInfo{Title: "Pilot", Language: "eng"}

		assert.Equal(t, filepath.Join("/s", "Pilot.eng.mkv"), b.build(sub, info).Main)
	})

	t.Run("strm mode", func(t *testing.T) {
		sub := &Subscription{Name: "Doku", Download: Download{Mode: ModeStrm}}
		info := &downloader.VideoInfo{Title: "Wale", Language: "deu"}

		assert.Equal(t, filepath.Join("/lib", "Doku", "Wale.strm"), b.build(sub, info).Main)
	})

	t.Run("absolute numbering with accessibility tags", func(t *testing.T) {
		sub := &Subscription{Name: "Kids", Download: Download{Path: "/k", Mode: ModeVideo}, Series: Series{AllowAbsoluteNumbering: true}}
		info := &downloader.VideoInfo{Title: "Die Flucht", Language: "deu", AbsoluteEpisode: intPtr(12), IsShow: true, AudioDescription: true}

		assert.Equal(t, filepath.Join("/k", "012 - Die Flucht [AD].mkv"), b.build(sub, info).Main)
	})

	t.Run("extras folders", func(t *testing.T) {
		sub := &Subscription{Name: "Film", Download: Download{Path: "/f", Mode: ModeVideo}, Series: Series{TreatNonEpisodesAsExtras: true}}

		trailer := b.build(sub, &downloader.VideoInfo{Title: "Trailer", Language: "deu", Trailer: true})
		assert.Equal(t, filepath.Join("/f", "trailers"), trailer.Dir)

		interview := b.build(sub, &downloader.VideoInfo{Title: "Gespräch", Language: "deu", Interview: true})
		assert.Equal(t, filepath.Join("/f", "interviews"), interview.Dir)

		extra := b.build(sub, &downloader.VideoInfo{Title: "Making-of", Language: "deu"})
		assert.Equal(t, filepath.Join("/f", "extras"), extra.Dir)
	})
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a_b_c_", sanitize(`a/b:c?`))
	assert.Equal(t, "Titel", sanitize("  Titel. "))
	assert.Equal(t, "_", sanitize("..."))
	assert.Equal(t, "x_y", sanitize("x\ty"))
}
