package mediathek

import (
	"encoding/json"
	"fmt"
	"time"
)

// Field is a searchable result attribute.
type Field string

const (
	FieldTitle       Field = "title"
	FieldTopic       Field = "topic"
	FieldChannel     Field = "channel"
	FieldDescription Field = "description"
)

// SortField selects the result ordering key.
type SortField string

const (
	SortByTimestamp SortField = "timestamp"
	SortByDuration  SortField = "duration"
	SortByChannel   SortField = "channel"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

// QueryField matches Query against any of Fields.
type QueryField struct {
	Fields []Field `json:"fields"`
	Query  string  `json:"query"`
}

// Query is a search request. Queries are ANDed in order.
type Query struct {
	Queries     []QueryField `json:"queries"`
	Offset      int          `json:"offset"`
	Size        int          `json:"size"`
	SortBy      SortField    `json:"sortBy,omitempty"`
	SortOrder   SortOrder    `json:"sortOrder,omitempty"`
	MinDuration *int         `json:"minDuration,omitempty"` // seconds
	MaxDuration *int         `json:"maxDuration,omitempty"` // seconds
	Future      bool         `json:"future"`
}

// Quality is the resolution tier of a video variant.
type Quality int

const (
	QualityLow Quality = iota + 1
	QualityStandard
	QualityHD
)

func (q Quality) String() string {
	switch q {
	case QualityLow:
		return "low"
	case QualityStandard:
		return "standard"
	case QualityHD:
		return "hd"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (q Quality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// SubtitleType is the detected subtitle format.
type SubtitleType int

const (
	SubtitleUnknown SubtitleType = iota
	SubtitleTTML
	SubtitleWebVTT
)

func (t SubtitleType) String() string {
	switch t {
	case SubtitleTTML:
		return "ttml"
	case SubtitleWebVTT:
		return "webvtt"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t SubtitleType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Extension returns the file extension used when saving this subtitle type.
func (t SubtitleType) Extension() string {
	switch t {
	case SubtitleWebVTT:
		return ".vtt"
	default:
		return ".ttml"
	}
}

// VideoURL is one video variant of a result.
type VideoURL struct {
	URL     string  `json:"url"`
	Quality Quality `json:"quality"`
	Size    int64   `json:"size,omitempty"`
}

// SubtitleURL is one subtitle representation of a result.
type SubtitleURL struct {
	URL  string       `json:"url"`
	Type SubtitleType `json:"type"`
}

// ResultItem is one search hit.
type ResultItem struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Topic       string        `json:"topic"`
	Channel     string        `json:"channel"`
	Description string        `json:"description"`
	Timestamp   time.Time     `json:"timestamp"`
	Duration    time.Duration `json:"duration"`
	Size        int64         `json:"size"`
	WebsiteURL  string        `json:"websiteUrl,omitempty"`
	Videos      []VideoURL    `json:"videos"`
	Subtitles   []SubtitleURL `json:"subtitles"`
}

// BestVideo returns the highest quality variant.
func (r *ResultItem) BestVideo() (VideoURL, bool) {
	var best VideoURL
	for _, v := range r.Videos {
		if v.Quality > best.Quality {
			best = v
		}
	}
	return best, best.URL != ""
}

// QueryInfo describes the search execution.
type QueryInfo struct {
	ListTimestamp    time.Time     `json:"listTimestamp"`
	SearchEngineTime time.Duration `json:"searchEngineTime"`
	ResultCount      int           `json:"resultCount"`
	TotalResults     int           `json:"totalResults"`
	TotalRelation    string        `json:"totalRelation"`
	TotalEntries     int           `json:"totalEntries"`
}

// QueryResult is a page of results plus query info.
type QueryResult struct {
	Items []ResultItem `json:"items"`
	Info  QueryInfo    `json:"queryInfo"`
}

// Wire types for the upstream API.

type apiEnvelope struct {
	Err    json.RawMessage `json:"err"`
	Result *apiResult      `json:"result"`
}

type apiResult struct {
	Results   []apiItem    `json:"results"`
	QueryInfo apiQueryInfo `json:"queryInfo"`
}

type apiItem struct {
	ID          string `json:"id"`
	Channel     string `json:"channel"`
	Topic       string `json:"topic"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Timestamp   int64  `json:"timestamp"`
	Duration    int64  `json:"duration"`
	Size        int64  `json:"size"`
	URLWebsite  string `json:"url_website"`
	URLSubtitle string `json:"url_subtitle"`
	URLVideo    string `json:"url_video"`
	URLVideoLow string `json:"url_video_low"`
	URLVideoHD  string `json:"url_video_hd"`
}

type apiQueryInfo struct {
	FilmlisteTimestamp json.Number `json:"filmlisteTimestamp"`
	SearchEngineTime   json.Number `json:"searchEngineTime"`
	ResultCount        int         `json:"resultCount"`
	TotalResults       int         `json:"totalResults"`
	TotalRelation      string      `json:"totalRelation"`
	TotalEntries       int         `json:"totalEntries"`
}

func (q apiQueryInfo) toModel() QueryInfo {
	info := QueryInfo{
		ResultCount:   q.ResultCount,
		TotalResults:  q.TotalResults,
		TotalRelation: q.TotalRelation,
		TotalEntries:  q.TotalEntries,
	}
	if info.TotalRelation == "" {
		info.TotalRelation = "eq"
	}
	if ts, err := q.FilmlisteTimestamp.Int64(); err == nil && ts > 0 {
		info.ListTimestamp = time.Unix(ts, 0).UTC()
	}
	if ms, err := q.SearchEngineTime.Float64(); err == nil {
		info.SearchEngineTime = time.Duration(ms * float64(time.Millisecond))
	}
	return info
}

func (it apiItem) toModel(allowHTTP bool) ResultItem {
	item := ResultItem{
		ID:          it.ID,
		Title:       it.Title,
		Topic:       it.Topic,
		Channel:     it.Channel,
		Description: it.Description,
		Timestamp:   time.Unix(it.Timestamp, 0).UTC(),
		Duration:    time.Duration(it.Duration) * time.Second,
		Size:        it.Size,
		WebsiteURL:  NormalizeURL(it.URLWebsite, allowHTTP),
		Videos:      []VideoURL{},
		Subtitles:   []SubtitleURL{},
	}

	if it.URLVideoLow != "" {
		item.Videos = append(item.Videos, VideoURL{URL: NormalizeURL(it.URLVideoLow, allowHTTP), Quality: QualityLow})
	}
	if it.URLVideo != "" {
		item.Videos = append(item.Videos, VideoURL{URL: NormalizeURL(it.URLVideo, allowHTTP), Quality: QualityStandard, Size: it.Size})
	}
	if it.URLVideoHD != "" {
		item.Videos = append(item.Videos, VideoURL{URL: NormalizeURL(it.URLVideoHD, allowHTTP), Quality: QualityHD})
	}
	if it.URLSubtitle != "" {
		item.Subtitles = DeriveSubtitles(NormalizeURL(it.URLSubtitle, allowHTTP))
	}
	return item
}

func (q Query) String() string {
	return fmt.Sprintf("queries=%d offset=%d size=%d", len(q.Queries), q.Offset, q.Size)
}
