package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediathekdl/mediathekdl/internal/testutil"
)

type stubValidator struct {
	ok    bool
	err   error
	calls []string
}

func (v *stubValidator) ValidateURL(_ context.Context, raw string) (bool, error) {
	v.calls = append(v.calls, raw)
	return v.ok, v.err
}

// recordingTool writes a script that stores its arguments, one per line.
func recordingTool(t *testing.T, dir, name, stdout string) (string, string) {
	t.Helper()
	argsFile := filepath.Join(dir, name+".args")
	body := `for a in "$@"; do printf '%s\n' "$a" >> "` + argsFile + `"; done
cat <<'JSON'
` + stdout + `
JSON
`
	return testutil.WriteScript(t, dir, name, body), argsFile
}

func readArgs(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestArgumentContracts(t *testing.T) {
	assert.Equal(t,
		[]string{"-i", "in.mp4", "-vn", "-acodec", "copy", "-metadata:s:a:0", "language=deu", "-y", "out.mka"},
		ExtractAudioArgs("in.mp4", "out.mka", "deu"))

	assert.Equal(t,
		[]string{"-i", "https://u", "-vn", "-acodec", "copy", "-metadata:s:a:0", "language=eng",
			"-disposition:a:0", "original+visual_impaired", "-f", "matroska", "-y", "o.mka"},
		ExtractAudioFromURLArgs("https://u", "o.mka", "eng", AudioDisposition{Original: true, VisualImpaired: true}))

	assert.Equal(t,
		[]string{"-i", "https://u", "-vn", "-acodec", "copy", "-metadata:s:a:0", "language=deu",
			"-f", "matroska", "-y", "o.mka"},
		ExtractAudioFromURLArgs("https://u", "o.mka", "deu", AudioDisposition{}))

	assert.Equal(t,
		[]string{"-protocol_whitelist", "file,http,https,tcp,tls", "-i", "https://u/m.m3u8",
			"-c", "copy", "-bsf:a", "aac_adtstoasc", "-y", "o.mp4"},
		DownloadStreamArgs("https://u/m.m3u8", "o.mp4"))

	assert.Equal(t,
		[]string{"-v", "error", "-select_streams", "v:0", "-show_entries",
			"stream=width,height,duration:format=duration,size", "-of", "json", "x.mp4"},
		ProbeArgs("x.mp4"))
}

func TestService_ExtractAudioFromURL(t *testing.T) {
	dir := t.TempDir()
	tool, argsFile := recordingTool(t, dir, "ffmpeg", "")
	validator := &stubValidator{ok: true}
	svc := NewService(Config{FFmpegPath: tool}, NewSupervisor(testutil.NopLogger()), validator, testutil.NopLogger())

	ok, err := svc.ExtractAudioFromURL(context.Background(), "https://a.zdf.de/v.mp4", "/tmp/o.mka", "eng",
		AudioDisposition{Original: true}, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"https://a.zdf.de/v.mp4"}, validator.calls)
	assert.Equal(t, ExtractAudioFromURLArgs("https://a.zdf.de/v.mp4", "/tmp/o.mka", "eng", AudioDisposition{Original: true}),
		readArgs(t, argsFile))
}

func TestService_ValidationFailureSkipsProcess(t *testing.T) {
	dir := t.TempDir()
	tool, argsFile := recordingTool(t, dir, "ffmpeg", "")
	policyErr := errors.New("domain not allowed")
	svc := NewService(Config{FFmpegPath: tool}, NewSupervisor(testutil.NopLogger()),
		&stubValidator{err: policyErr}, testutil.NopLogger())

	ok, err := svc.DownloadStream(context.Background(), "https://evil.example/x.m3u8", "/tmp/o.mp4", nil)
	assert.False(t, ok)
	assert.ErrorIs(t, err, policyErr)
	assert.NoFileExists(t, argsFile)

	svc.validator = &stubValidator{ok: false}
	_, err = svc.DownloadStream(context.Background(), "https://gone.zdf.de/x.m3u8", "/tmp/o.mp4", nil)
	assert.ErrorIs(t, err, ErrURLRejected)
}

func TestService_MissingBinary(t *testing.T) {
	svc := &Service{supervisor: NewSupervisor(testutil.NopLogger()), logger: testutil.NopLogger()}
	_, err := svc.ExtractAudio(context.Background(), "a", "b", "deu", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Nil(t, svc.Probe(context.Background(), "a"))
}

func TestService_ProbeResolvesPointerFile(t *testing.T) {
	dir := t.TempDir()
	tool, argsFile := recordingTool(t, dir, "ffprobe",
		`{"streams":[{"width":1920,"height":1080}],"format":{"duration":"1800.5","size":"734003200"}}`)
	validator := &stubValidator{ok: true}
	svc := NewService(Config{FFprobePath: tool}, NewSupervisor(testutil.NopLogger()), validator, testutil.NopLogger())

	strm := testutil.WriteFile(t, dir, "Show/Episode.strm", []byte("https://a.zdf.de/v.mp4\n"))

	info := svc.Probe(context.Background(), strm)
	require.NotNil(t, info)
	assert.True(t, info.Valid())
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1800*time.Second+500*time.Millisecond, info.Duration)
	assert.Equal(t, int64(734003200), info.FileSize)
	assert.Equal(t, []string{"https://a.zdf.de/v.mp4"}, validator.calls)
	assert.Equal(t, ProbeArgs("https://a.zdf.de/v.mp4"), readArgs(t, argsFile))
}

func TestService_ProbeRejectedRemote(t *testing.T) {
	dir := t.TempDir()
	tool, argsFile := recordingTool(t, dir, "ffprobe", `{"streams":[{"width":1,"height":1}]}`)
	svc := NewService(Config{FFprobePath: tool}, NewSupervisor(testutil.NopLogger()),
		&stubValidator{err: errors.New("http not allowed")}, testutil.NopLogger())

	assert.Nil(t, svc.Probe(context.Background(), "http://a.zdf.de/v.mp4"))
	assert.NoFileExists(t, argsFile)
}

func TestParseProbe(t *testing.T) {
	dir := t.TempDir()
	local := testutil.WriteFile(t, dir, "v.mkv", make([]byte, 4096))

	tests := []struct {
		name   string
		json   string
		target string
		want   *ProbeInfo
		valid  bool
	}{
		{
			name:   "stream fields win",
			json:   `{"streams":[{"width":1280,"height":720,"duration":"60.0"}],"format":{"duration":"61.0","size":"100"}}`,
			target: "https://x/v.mp4",
			want:   &ProbeInfo{Path: "https://x/v.mp4", Width: 1280, Height: 720, Duration: time.Minute, FileSize: 100},
			valid:  true,
		},
		{
			name:   "format duration fallback",
			json:   `{"streams":[{"width":1280,"height":720}],"format":{"duration":"30","size":"100"}}`,
			target: "https://x/v.mp4",
			want:   &ProbeInfo{Path: "https://x/v.mp4", Width: 1280, Height: 720, Duration: 30 * time.Second, FileSize: 100},
			valid:  true,
		},
		{
			name:   "local stat size fallback",
			json:   `{"streams":[{"width":640,"height":360,"duration":"5"}],"format":{"duration":"5"}}`,
			target: local,
			want:   &ProbeInfo{Path: local, Width: 640, Height: 360, Duration: 5 * time.Second, FileSize: 4096},
			valid:  true,
		},
		{
			name:   "remote without size is partial",
			json:   `{"streams":[{"width":640,"height":360,"duration":"5"}]}`,
			target: "https://x/v.mp4",
			want:   &ProbeInfo{Path: "https://x/v.mp4", Width: 640, Height: 360, Duration: 5 * time.Second},
			valid:  false,
		},
		{name: "no video stream", json: `{"streams":[],"format":{"duration":"5","size":"1"}}`, target: "x"},
		{name: "malformed", json: `{"streams":[`, target: "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseProbe([]byte(tt.json), tt.target)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.valid, got.Valid())
		})
	}
}
