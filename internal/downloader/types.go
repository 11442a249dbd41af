package downloader

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type selects the acquisition strategy for an item.
type Type string

const (
	TypeDirect          Type = "direct"
	TypeStreamingURL    Type = "streaming_url"
	TypeAudioExtraction Type = "audio_extraction"
	TypeStream          Type = "stream"
	TypeQualityUpgrade  Type = "quality_upgrade"
)

// Types lists every acquisition type in declaration order.
var Types = []Type{TypeDirect, TypeStreamingURL, TypeAudioExtraction, TypeStream, TypeQualityUpgrade}

// Valid reports whether t is a known acquisition type.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Item is one file to materialize. ReplacePath names the existing file a
// quality upgrade supersedes; it defaults to DestinationPath.
type Item struct {
	SourceURL       string `json:"sourceUrl"`
	DestinationPath string `json:"destinationPath"`
	ReplacePath     string `json:"replacePath,omitempty"`
	Type            Type   `json:"type"`
}

func (i Item) String() string {
	return fmt.Sprintf("%s %s -> %s", i.Type, i.SourceURL, i.DestinationPath)
}

// fileToReplace returns the path an upgrade replaces.
func (i Item) fileToReplace() string {
	if i.ReplacePath != "" {
		return i.ReplacePath
	}
	return i.DestinationPath
}

// VideoInfo is what the title parser learned about a video.
type VideoInfo struct {
	Title            string `json:"title"`
	Language         string `json:"language"`
	Season           *int   `json:"season,omitempty"`
	Episode          *int   `json:"episode,omitempty"`
	AbsoluteEpisode  *int   `json:"absoluteEpisode,omitempty"`
	IsShow           bool   `json:"isShow"`
	AudioDescription bool   `json:"audioDescription"`
	SignLanguage     bool   `json:"signLanguage"`
	Trailer          bool   `json:"trailer"`
	Interview        bool   `json:"interview"`
}

// HasSeasonEpisode reports whether both season and episode are known.
func (v VideoInfo) HasSeasonEpisode() bool {
	return v.Season != nil && v.Episode != nil
}

// IsExtra reports whether the video is bonus material rather than an episode.
func (v VideoInfo) IsExtra() bool {
	return v.Interview || v.Trailer || !v.IsShow
}

// clone returns a copy that shares no memory with v.
func (v VideoInfo) clone() VideoInfo {
	c := v
	c.Season = cloneInt(v.Season)
	c.Episode = cloneInt(v.Episode)
	c.AbsoluteEpisode = cloneInt(v.AbsoluteEpisode)
	return c
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// NFOPayload describes the metadata file written next to a finished video.
type NFOPayload struct {
	FilePath    string        `json:"filePath"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Show        string        `json:"show,omitempty"`
	Season      *int          `json:"season,omitempty"`
	Episode     *int          `json:"episode,omitempty"`
	Studio      string        `json:"studio,omitempty"`
	ID          string        `json:"id,omitempty"`
	AirDate     *time.Time    `json:"airDate,omitempty"`
	RunTime     time.Duration `json:"runTime,omitempty"`
}

// Job is one logical video and the files it consists of. The item set is
// fixed by NewJob.
type Job struct {
	ItemID    string
	Title     string
	VideoInfo VideoInfo
	NFO       *NFOPayload

	items []Item
}

// NewJob builds a job, dropping items that repeat an earlier
// (source, destination) pair. info is copied.
func NewJob(itemID, title string, info VideoInfo, nfo *NFOPayload, items ...Item) *Job {
	type key struct{ src, dst string }
	seen := make(map[key]struct{}, len(items))
	unique := make([]Item, 0, len(items))
	for _, it := range items {
		k := key{it.SourceURL, it.DestinationPath}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, it)
	}

	var payload *NFOPayload
	if nfo != nil {
		p := *nfo
		p.Season = cloneInt(nfo.Season)
		p.Episode = cloneInt(nfo.Episode)
		payload = &p
	}

	return &Job{
		ItemID:    itemID,
		Title:     title,
		VideoInfo: info.clone(),
		NFO:       payload,
		items:     unique,
	}
}

// Items returns a copy of the job's items in execution order.
func (j *Job) Items() []Item {
	out := make([]Item, len(j.items))
	copy(out, j.items)
	return out
}

// Len returns the number of items.
func (j *Job) Len() int {
	return len(j.items)
}

func (j *Job) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ItemID    string      `json:"itemId"`
		Title     string      `json:"title"`
		VideoInfo VideoInfo   `json:"videoInfo"`
		NFO       *NFOPayload `json:"nfo,omitempty"`
		Items     []Item      `json:"items"`
	}{j.ItemID, j.Title, j.VideoInfo, j.NFO, j.Items()})
}
