package transfer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopDomain(t *testing.T) {
	tests := []struct {
		host string
		want string
		ok   bool
	}{
		{"media.zdf.de", "zdf.de", true},
		{"ZDF.DE", "zdf.de", true},
		{"a.b.akamaihd.net.", "akamaihd.net", true},
		{"localhost", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := TopDomain(tt.host)
		if got != tt.want || ok != tt.ok {
			t.Errorf("TopDomain(%q) = %q, %v, want %q, %v", tt.host, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPolicy_Check(t *testing.T) {
	p := NewPolicy(false, false, []string{"zdf.de", " ARDMediathek.de "})

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"https allowed domain", "https://nrodlzdf-a.akamaihd.net.zdf.de/video.mp4", false},
		{"mixed case domain", "https://api.ardmediathek.de/x", false},
		{"http rejected", "http://zdf.de/video.mp4", true},
		{"unknown domain", "https://example.com/video.mp4", true},
		{"ftp rejected", "ftp://zdf.de/video.mp4", true},
		{"empty", "", true},
		{"relative", "/video.mp4", true},
		{"single label host", "https://intranet/video.mp4", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Check(tt.url)
			if tt.wantErr {
				var verr *ValidationError
				require.Error(t, err)
				assert.True(t, errors.As(err, &verr), "error should be a ValidationError")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPolicy_Relaxed(t *testing.T) {
	p := NewPolicy(true, true, nil)

	_, err := p.Check("http://example.com/a.mp4")
	assert.NoError(t, err)

	_, err = p.Check("file:///etc/passwd")
	assert.Error(t, err)
}
