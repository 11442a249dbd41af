package downloader

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
)

// XMLNFOWriter writes Kodi-style episodedetails files.
type XMLNFOWriter struct {
	logger zerolog.Logger
}

// NewXMLNFOWriter creates an NFO writer.
func NewXMLNFOWriter(logger zerolog.Logger) *XMLNFOWriter {
	return &XMLNFOWriter{logger: logger.With().Str("component", "nfo").Logger()}
}

type nfoUniqueID struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type nfoDocument struct {
	XMLName   xml.Name     `xml:"episodedetails"`
	Title     string       `xml:"title,omitempty"`
	ShowTitle string       `xml:"showtitle,omitempty"`
	Plot      string       `xml:"plot,omitempty"`
	Season    string       `xml:"season,omitempty"`
	Episode   string       `xml:"episode,omitempty"`
	Aired     string       `xml:"aired,omitempty"`
	DateAdded string       `xml:"dateadded,omitempty"`
	Runtime   string       `xml:"runtime,omitempty"`
	Studio    string       `xml:"studio,omitempty"`
	UniqueID  *nfoUniqueID `xml:"uniqueid,omitempty"`
}

// WriteNFO writes payload to payload.FilePath.
func (w *XMLNFOWriter) WriteNFO(ctx context.Context, p *NFOPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.FilePath == "" {
		return fmt.Errorf("nfo payload has no file path")
	}

	doc := nfoDocument{
		Title:     p.Title,
		ShowTitle: p.Show,
		Plot:      p.Description,
		Studio:    p.Studio,
	}
	if p.Season != nil {
		doc.Season = strconv.Itoa(*p.Season)
	}
	if p.Episode != nil {
		doc.Episode = strconv.Itoa(*p.Episode)
	}
	if p.AirDate != nil {
		doc.Aired = p.AirDate.Format("2006-01-02")
		doc.DateAdded = p.AirDate.Format("2006-01-02 15:04:05")
	}
	if p.RunTime > 0 {
		doc.Runtime = strconv.Itoa(int(p.RunTime.Minutes()))
	}
	if p.ID != "" {
		doc.UniqueID = &nfoUniqueID{Type: "mediathekview", Value: p.ID}
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode nfo: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(p.FilePath), 0o755); err != nil {
		return fmt.Errorf("failed to create nfo directory: %w", err)
	}
	content := append([]byte(xml.Header), data...)
	if err := os.WriteFile(p.FilePath, append(content, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write nfo: %w", err)
	}
	w.logger.Info().Str("path", p.FilePath).Msg("Created NFO file")
	return nil
}
