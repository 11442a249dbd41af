// Package subscription turns saved searches into download jobs.
package subscription

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/mediathekdl/mediathekdl/internal/mediathek"
)

// ErrInvalid is wrapped by validation failures of the subscriptions file.
var ErrInvalid = errors.New("invalid subscription")

// Mode selects what a subscription materializes.
type Mode string

const (
	ModeVideo Mode = "video"
	ModeAudio Mode = "audio"
	ModeStrm  Mode = "strm"
)

// Search holds the search criteria of a subscription.
type Search struct {
	Title              string `yaml:"title"`
	Topic              string `yaml:"topic"`
	Channel            string `yaml:"channel"`
	Combined           string `yaml:"combined"`
	MinDurationMinutes int    `yaml:"min_duration_minutes"`
	MaxDurationMinutes int    `yaml:"max_duration_minutes"`
	BroadcastSinceDays int    `yaml:"broadcast_since_days"`
	Future             bool   `yaml:"future"`
}

// Download holds how matches are stored.
type Download struct {
	Path                       string `yaml:"path"`
	Mode                       Mode   `yaml:"mode"`
	Subtitles                  *bool  `yaml:"subtitles"`
	NFO                        bool   `yaml:"nfo"`
	FallbackToLowerQuality     bool   `yaml:"fallback_to_lower_quality"`
	CheckURL                   bool   `yaml:"check_url"`
	AutoUpgrade                bool   `yaml:"auto_upgrade"`
	FullVideoForSecondaryAudio bool   `yaml:"full_video_for_secondary_audio"`
}

// Series holds episode parsing preferences.
type Series struct {
	EnforceParsing           bool `yaml:"enforce_parsing"`
	AllowAbsoluteNumbering   bool `yaml:"allow_absolute_numbering"`
	TreatNonEpisodesAsExtras bool `yaml:"treat_non_episodes_as_extras"`
	SaveTrailers             bool `yaml:"save_trailers"`
	SaveInterviews           bool `yaml:"save_interviews"`
	SaveGenericExtras        bool `yaml:"save_generic_extras"`
}

// Subscription is a saved search that is run periodically.
type Subscription struct {
	ID                    uuid.UUID `yaml:"id"`
	Name                  string    `yaml:"name"`
	Enabled               bool      `yaml:"enabled"`
	Search                Search    `yaml:"search"`
	Download              Download  `yaml:"download"`
	Series                Series    `yaml:"series"`
	OriginalLanguage      string    `yaml:"original_language"`
	AllowAudioDescription bool      `yaml:"allow_audio_description"`
	AllowSignLanguage     bool      `yaml:"allow_sign_language"`
}

// SearchParams converts the criteria for the search client. now anchors
// the broadcast window.
func (s *Subscription) SearchParams(now time.Time, pageSize int) mediathek.SearchParams {
	p := mediathek.SearchParams{
		Title:    s.Search.Title,
		Topic:    s.Search.Topic,
		Channel:  s.Search.Channel,
		Combined: s.Search.Combined,
		Future:   s.Search.Future,
		PageSize: pageSize,
	}
	if s.Search.MinDurationMinutes > 0 {
		v := s.Search.MinDurationMinutes * 60
		p.MinDuration = &v
	}
	if s.Search.MaxDurationMinutes > 0 {
		v := s.Search.MaxDurationMinutes * 60
		p.MaxDuration = &v
	}
	if s.Search.BroadcastSinceDays > 0 {
		since := now.AddDate(0, 0, -s.Search.BroadcastSinceDays)
		p.MinBroadcast = &since
	}
	return p
}

// WantsSubtitles applies the subscription override to the global default.
func (s *Subscription) WantsSubtitles(global bool) bool {
	if s.Download.Subtitles != nil {
		return *s.Download.Subtitles
	}
	return global
}

type file struct {
	Subscriptions []Subscription `yaml:"subscriptions"`
}

// LoadFile reads subscriptions from a YAML file. A missing file yields no
// subscriptions.
func LoadFile(path string) ([]Subscription, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read subscriptions: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a subscriptions document.
func Parse(data []byte) ([]Subscription, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse subscriptions: %w", err)
	}

	seen := make(map[uuid.UUID]string, len(f.Subscriptions))
	for i := range f.Subscriptions {
		s := &f.Subscriptions[i]
		if s.Name == "" {
			return nil, fmt.Errorf("%w: entry %d has no name", ErrInvalid, i+1)
		}
		if s.ID == uuid.Nil {
			return nil, fmt.Errorf("%w: %q has no id", ErrInvalid, s.Name)
		}
		if other, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("%w: %q and %q share id %s", ErrInvalid, other, s.Name, s.ID)
		}
		seen[s.ID] = s.Name

		switch s.Download.Mode {
		case "":
			s.Download.Mode = ModeVideo
		case ModeVideo, ModeAudio, ModeStrm:
		default:
			return nil, fmt.Errorf("%w: %q has unknown mode %q", ErrInvalid, s.Name, s.Download.Mode)
		}

		terms := mediathek.SearchParams{
			Title: s.Search.Title, Topic: s.Search.Topic, Channel: s.Search.Channel, Combined: s.Search.Combined,
		}
		if len(terms.BuildQueries()) == 0 {
			return nil, fmt.Errorf("%w: %q has no search terms", ErrInvalid, s.Name)
		}
	}
	return f.Subscriptions, nil
}
