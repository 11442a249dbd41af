package subscription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mediathekdl/mediathekdl/internal/downloader"
	"github.com/mediathekdl/mediathekdl/internal/ffmpeg"
	"github.com/mediathekdl/mediathekdl/internal/mediathek"
	"github.com/mediathekdl/mediathekdl/internal/qualitycache"
	"github.com/mediathekdl/mediathekdl/internal/queue"
)

// ErrRunInProgress is returned when Run is called while a run is active.
var ErrRunInProgress = errors.New("subscription run already in progress")

// durationTolerance is how far local and remote durations may differ for
// the two to count as the same video.
const durationTolerance = 2 * time.Second

// Searcher runs a paged term search.
type Searcher interface {
	SearchAll(ctx context.Context, p mediathek.SearchParams) ([]mediathek.ResultItem, error)
}

// History answers whether an item was already downloaded.
type History interface {
	HasItem(ctx context.Context, itemID string, subscriptionID uuid.UUID) (bool, error)
}

// Queue accepts jobs and reports their outcome.
type Queue interface {
	Enqueue(job *downloader.Job, subscriptionID *uuid.UUID) uuid.UUID
	Wait(ctx context.Context, id uuid.UUID) (queue.ActiveDownload, error)
}

// Prober measures local files and remote sources.
type Prober interface {
	Probe(ctx context.Context, target string) *ffmpeg.ProbeInfo
}

// QualityCache stores remote probe results.
type QualityCache interface {
	Get(ctx context.Context, url string) (*qualitycache.Entry, error)
	Put(ctx context.Context, url string, width, height int, size int64) error
	Remove(ctx context.Context, url string) error
}

// URLValidator checks that a remote URL still serves content.
type URLValidator interface {
	ValidateURL(ctx context.Context, raw string) (bool, error)
}

// Source yields the current subscription definitions.
type Source func() ([]Subscription, error)

// Config holds processor settings.
type Config struct {
	DefaultPath       string
	DefaultLanguage   string
	DownloadSubtitles bool
	FutureBroadcasts  bool
	PageSize          int
}

// Stats summarizes one run.
type Stats struct {
	Subscriptions int `json:"subscriptions"`
	Processed     int `json:"processed"`
	Failed        int `json:"failed"`
}

// Processor runs subscriptions: search, filter, build jobs, enqueue.
type Processor struct {
	source    Source
	search    Searcher
	history   History
	queue     Queue
	parser    VideoParser
	prober    Prober
	cache     QualityCache
	validator URLValidator
	paths     pathBuilder
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time
	running   atomic.Bool
}

// Deps are the collaborators of a Processor. Prober, Cache and Validator
// may be nil; quality upgrades and URL checks are then skipped.
type Deps struct {
	Source    Source
	Search    Searcher
	History   History
	Queue     Queue
	Parser    VideoParser
	Prober    Prober
	Cache     QualityCache
	Validator URLValidator
}

// NewProcessor creates a new subscription processor.
func NewProcessor(deps Deps, cfg Config, logger zerolog.Logger) *Processor {
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "deu"
	}
	parser := deps.Parser
	if parser == nil {
		parser = TitleParser{DefaultLanguage: cfg.DefaultLanguage}
	}
	return &Processor{
		source:    deps.Source,
		search:    deps.Search,
		history:   deps.History,
		queue:     deps.Queue,
		parser:    parser,
		prober:    deps.Prober,
		cache:     deps.Cache,
		validator: deps.Validator,
		paths:     pathBuilder{defaultRoot: cfg.DefaultPath, defaultLanguage: cfg.DefaultLanguage},
		cfg:       cfg,
		logger:    logger.With().Str("component", "subscriptions").Logger(),
		now:       time.Now,
	}
}

// Run processes every enabled subscription one at a time. Each job is
// enqueued and waited for before the next. A failing subscription or job
// is counted and logged; only cancellation of ctx ends the run early.
func (p *Processor) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	if !p.running.CompareAndSwap(false, true) {
		return stats, ErrRunInProgress
	}
	defer p.running.Store(false)

	subs, err := p.source()
	if err != nil {
		return stats, fmt.Errorf("failed to load subscriptions: %w", err)
	}

	start := p.now()
	for i := range subs {
		sub := &subs[i]
		if !sub.Enabled {
			continue
		}
		stats.Subscriptions++

		log := p.logger.With().Str("subscription", sub.Name).Str("subscriptionId", sub.ID.String()).Logger()

		jobs, err := p.Jobs(ctx, sub)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failed++
			log.Error().Err(err).Msg("Failed to build jobs for subscription")
			continue
		}
		log.Info().Int("jobs", len(jobs)).Msg("Processing subscription")

		for _, job := range jobs {
			id := p.queue.Enqueue(job, &sub.ID)
			result, err := p.queue.Wait(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				stats.Failed++
				log.Error().Err(err).Str("id", id.String()).Msg("Lost track of queued job")
				continue
			}
			if result.Status == queue.StatusFinished {
				stats.Processed++
				continue
			}
			stats.Failed++
			log.Warn().
				Str("id", id.String()).
				Str("title", job.Title).
				Str("status", string(result.Status)).
				Str("error", result.Error).
				Msg("Subscription job did not finish")
		}
	}

	p.logger.Info().
		Int("subscriptions", stats.Subscriptions).
		Int("processed", stats.Processed).
		Int("failed", stats.Failed).
		Dur("duration", p.now().Sub(start)).
		Msg("Subscription run complete")
	return stats, nil
}

// Running reports whether a run is active.
func (p *Processor) Running() bool {
	return p.running.Load()
}

// Jobs searches for sub and returns the jobs still to be done.
func (p *Processor) Jobs(ctx context.Context, sub *Subscription) ([]*downloader.Job, error) {
	params := sub.SearchParams(p.now(), p.cfg.PageSize)
	params.Future = params.Future || p.cfg.FutureBroadcasts
	results, err := p.search.SearchAll(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var jobs []*downloader.Job
	for i := range results {
		job, err := p.jobFor(ctx, sub, &results[i])
		if err != nil {
			return nil, err
		}
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

func (p *Processor) jobFor(ctx context.Context, sub *Subscription, item *mediathek.ResultItem) (*downloader.Job, error) {
	log := p.logger.With().Str("itemId", item.ID).Str("title", item.Title).Logger()

	downloaded, err := p.history.HasItem(ctx, item.ID, sub.ID)
	if err != nil {
		return nil, err
	}
	if downloaded && !sub.Download.AutoUpgrade {
		return nil, nil
	}

	info := p.parser.Parse(item.Topic, item.Title)
	if info == nil {
		log.Debug().Msg("Skipping unparseable title")
		return nil, nil
	}
	if info.Language == LanguageUndetermined && sub.OriginalLanguage != "" {
		info.Language = sub.OriginalLanguage
	}
	if reason := p.excluded(sub, info); reason != "" {
		log.Debug().Str("reason", reason).Msg("Skipping item")
		return nil, nil
	}

	source, ok := p.pickVideo(ctx, sub, item)
	if !ok {
		log.Debug().Msg("No usable video URL")
		return nil, nil
	}

	paths := p.paths.build(sub, info)
	main, ok := p.mainItem(ctx, sub, info, item, source, paths)
	if !ok || (downloaded && main.Type != downloader.TypeQualityUpgrade) {
		return nil, nil
	}
	items := []downloader.Item{main}

	if sub.WantsSubtitles(p.cfg.DownloadSubtitles) && sub.Download.Mode != ModeStrm && len(item.Subtitles) > 0 {
		st := item.Subtitles[0]
		items = append(items, downloader.Item{
			SourceURL:       st.URL,
			DestinationPath: paths.Subtitle(info.Language, st.Type),
			Type:            downloader.TypeDirect,
		})
	}

	var nfo *downloader.NFOPayload
	if sub.Download.NFO {
		nfo = p.nfoFor(item, info, paths)
	}

	return downloader.NewJob(item.ID, item.Title, *info, nfo, items...), nil
}

// excluded returns why a video does not belong to sub, or "".
func (p *Processor) excluded(sub *Subscription, info *downloader.VideoInfo) string {
	switch {
	case info.AudioDescription && !sub.AllowAudioDescription:
		return "audio description"
	case info.SignLanguage && !sub.AllowSignLanguage:
		return "sign language"
	case info.Trailer && !sub.Series.SaveTrailers:
		return "trailer"
	case info.Interview && !sub.Series.SaveInterviews:
		return "interview"
	}
	if info.Trailer || info.Interview || !sub.Series.EnforceParsing {
		return ""
	}

	episodic := info.HasSeasonEpisode() ||
		(info.AbsoluteEpisode != nil && sub.Series.AllowAbsoluteNumbering)
	if episodic {
		return ""
	}
	if sub.Series.TreatNonEpisodesAsExtras && sub.Series.SaveGenericExtras {
		info.IsShow = false
		return ""
	}
	return "no episode numbering"
}

// pickVideo returns the best usable variant: HD only, or HD then standard
// then low when falling back is allowed.
func (p *Processor) pickVideo(ctx context.Context, sub *Subscription, item *mediathek.ResultItem) (string, bool) {
	order := []mediathek.Quality{mediathek.QualityHD}
	if sub.Download.FallbackToLowerQuality {
		order = append(order, mediathek.QualityStandard, mediathek.QualityLow)
	}

	for _, q := range order {
		for _, v := range item.Videos {
			if v.Quality != q || v.URL == "" {
				continue
			}
			if !sub.Download.CheckURL || p.validator == nil {
				return v.URL, true
			}
			ok, err := p.validator.ValidateURL(ctx, v.URL)
			if err != nil {
				p.logger.Debug().Err(err).Str("url", v.URL).Msg("Video URL rejected")
				continue
			}
			if ok {
				return v.URL, true
			}
		}
	}
	return "", false
}

func (p *Processor) mainItem(ctx context.Context, sub *Subscription, info *downloader.VideoInfo, item *mediathek.ResultItem, source string, paths Paths) (downloader.Item, bool) {
	it := downloader.Item{SourceURL: source, DestinationPath: paths.Main}

	switch {
	case sub.Download.Mode == ModeStrm:
		it.Type = downloader.TypeStreamingURL
		return it, true
	case p.paths.audioOnly(sub, info):
		it.Type = downloader.TypeAudioExtraction
		return it, true
	}

	if fileExists(paths.Main) {
		if !sub.Download.AutoUpgrade || !p.upgradeAvailable(ctx, paths.Main, source, item.Duration) {
			return it, false
		}
		it.Type = downloader.TypeQualityUpgrade
		it.ReplacePath = paths.Main
		return it, true
	}

	it.Type = downloader.TypeDirect
	if isPlaylist(source) {
		it.Type = downloader.TypeStream
	}
	return it, true
}

// upgradeAvailable reports whether source is strictly larger in both
// dimensions than the local file and is the same video.
func (p *Processor) upgradeAvailable(ctx context.Context, local, source string, listed time.Duration) bool {
	if p.prober == nil {
		return false
	}
	have := p.prober.Probe(ctx, local)
	if !have.Valid() {
		return false
	}

	width, height, duration, ok := p.remoteQuality(ctx, source)
	if !ok {
		return false
	}
	if duration <= 0 {
		duration = listed
	}
	if duration <= 0 {
		return false
	}
	diff := have.Duration - duration
	if diff < 0 {
		diff = -diff
	}
	if diff > durationTolerance {
		return false
	}
	return width > have.Width && height > have.Height
}

// remoteQuality returns the cached dimensions of source, probing it on a
// cache miss. The duration is only known after a fresh probe.
func (p *Processor) remoteQuality(ctx context.Context, source string) (int, int, time.Duration, bool) {
	if p.cache != nil {
		e, err := p.cache.Get(ctx, source)
		switch {
		case err == nil && e.Width > 0 && e.Height > 0:
			return e.Width, e.Height, 0, true
		case err == nil:
			if err := p.cache.Remove(ctx, source); err != nil {
				p.logger.Warn().Err(err).Str("url", source).Msg("Failed to drop incomplete quality cache entry")
			}
		case !errors.Is(err, qualitycache.ErrNotFound):
			p.logger.Warn().Err(err).Str("url", source).Msg("Quality cache lookup failed")
		}
	}

	info := p.prober.Probe(ctx, source)
	if !info.Valid() {
		return 0, 0, 0, false
	}
	if p.cache != nil {
		if err := p.cache.Put(ctx, source, info.Width, info.Height, info.FileSize); err != nil {
			p.logger.Warn().Err(err).Str("url", source).Msg("Failed to cache remote quality")
		}
	}
	return info.Width, info.Height, info.Duration, true
}

func (p *Processor) nfoFor(item *mediathek.ResultItem, info *downloader.VideoInfo, paths Paths) *downloader.NFOPayload {
	nfo := &downloader.NFOPayload{
		FilePath:    paths.NFO(),
		Title:       info.Title,
		Description: item.Description,
		Studio:      item.Channel,
		ID:          item.ID,
		RunTime:     item.Duration,
	}
	if info.Season != nil {
		nfo.Show = item.Topic
		nfo.Season = info.Season
		nfo.Episode = info.Episode
	}
	if !item.Timestamp.IsZero() {
		aired := item.Timestamp
		nfo.AirDate = &aired
	}
	return nfo
}

func isPlaylist(raw string) bool {
	path := raw
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return strings.HasSuffix(strings.ToLower(path), ".m3u8")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
