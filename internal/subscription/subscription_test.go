package subscription

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediathekdl/mediathekdl/internal/testutil"
)

const sampleFile = `
subscriptions:
  - id: 6f1c1d8e-4a59-4f7b-9d55-3f7e0c8a2b11
    name: Tatort
    enabled: true
    search:
      topic: Tatort
      channel: ARD, ORF
      min_duration_minutes: 80
      broadcast_since_days: 7
    download:
      path: /media/tatort
      nfo: true
      subtitles: false
    series:
      enforce_parsing: false
  - id: 1b6a4e83-7c1f-4c43-8a3e-2f8d5d9a0c22
    name: Doku
    search:
      combined: Wale
    download:
      mode: strm
`

func TestParse(t *testing.T) {
	subs, err := Parse([]byte(sampleFile))
	require.NoError(t, err)
	require.Len(t, subs, 2)

	tatort := subs[0]
	assert.Equal(t, "6f1c1d8e-4a59-4f7b-9d55-3f7e0c8a2b11", tatort.ID.String())
	assert.True(t, tatort.Enabled)
	assert.Equal(t, ModeVideo, tatort.Download.Mode)
	assert.True(t, tatort.Download.NFO)
	assert.False(t, tatort.WantsSubtitles(true))

	doku := subs[1]
	assert.False(t, doku.Enabled)
	assert.Equal(t, ModeStrm, doku.Download.Mode)
	assert.True(t, doku.WantsSubtitles(true))
	assert.False(t, doku.WantsSubtitles(false))
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing name", "subscriptions:\n  - id: 6f1c1d8e-4a59-4f7b-9d55-3f7e0c8a2b11\n    search: {title: x}\n"},
		{"missing id", "subscriptions:\n  - name: a\n    search: {title: x}\n"},
		{"unknown mode", "subscriptions:\n  - id: 6f1c1d8e-4a59-4f7b-9d55-3f7e0c8a2b11\n    name: a\n    search: {title: x}\n    download: {mode: tape}\n"},
		{"no terms", "subscriptions:\n  - id: 6f1c1d8e-4a59-4f7b-9d55-3f7e0c8a2b11\n    name: a\n    search: {title: ' , '}\n"},
		{"duplicate id", "subscriptions:\n" +
			"  - {id: 6f1c1d8e-4a59-4f7b-9d55-3f7e0c8a2b11, name: a, search: {title: x}}\n" +
			"  - {id: 6f1c1d8e-4a59-4f7b-9d55-3f7e0c8a2b11, name: b, search: {title: y}}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	subs, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, subs)

	path := testutil.WriteFile(t, dir, "subscriptions.yaml", []byte(sampleFile))
	subs, err = LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}

func TestSubscription_SearchParams(t *testing.T) {
	subs, err := Parse([]byte(sampleFile))
	require.NoError(t, err)

	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	p := subs[0].SearchParams(now, 40)

	assert.Equal(t, "Tatort", p.Topic)
	assert.Equal(t, "ARD, ORF", p.Channel)
	assert.Equal(t, 40, p.PageSize)
	require.NotNil(t, p.MinDuration)
	assert.Equal(t, 80*60, *p.MinDuration)
	assert.Nil(t, p.MaxDuration)
	require.NotNil(t, p.MinBroadcast)
	assert.Equal(t, now.AddDate(0, 0, -7), *p.MinBroadcast)
	assert.Len(t, p.BuildQueries(), 3)
}
