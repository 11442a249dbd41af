package downloader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediathekdl/mediathekdl/internal/ffmpeg"
	"github.com/mediathekdl/mediathekdl/internal/testutil"
	"github.com/mediathekdl/mediathekdl/internal/transfer"
)

type testEnv struct {
	dir      string
	tempDir  string
	transfer *fakeTransfer
	encoder  *fakeEncoder
	deps     Deps
}

func newTestEnv(t *testing.T, bodies map[string]string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	tempDir := filepath.Join(dir, "tmp")
	env := &testEnv{
		dir:      dir,
		tempDir:  tempDir,
		transfer: newFakeTransfer(bodies),
		encoder:  &fakeEncoder{ok: true},
	}
	env.deps = Deps{
		Transfer:              env.transfer,
		Encoder:               env.encoder,
		Temp:                  NewTempPlacer(tempDir, testutil.NopLogger()),
		DirectAudioExtraction: true,
		DefaultLanguage:       "deu",
		Logger:                testutil.NopLogger(),
	}
	return env
}

func (e *testEnv) strategy(t *testing.T, typ Type) Strategy {
	t.Helper()
	reg, err := NewRegistry(NewStrategies(e.deps))
	require.NoError(t, err)
	s, err := reg.Resolve(typ)
	require.NoError(t, err)
	return s
}

func (e *testEnv) tempFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.tempDir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func TestNewRegistry(t *testing.T) {
	strategies := NewStrategies(Deps{Logger: testutil.NopLogger()})
	assert.Len(t, strategies, len(Types))

	reg, err := NewRegistry(strategies)
	require.NoError(t, err)

	_, err = reg.Resolve(Type("torrent"))
	assert.True(t, errors.Is(err, ErrNoStrategy))

	delete(strategies, TypeStream)
	_, err = NewRegistry(strategies)
	assert.True(t, errors.Is(err, ErrNoStrategy))

	full := NewStrategies(Deps{Logger: testutil.NopLogger()})
	full[Type("extra")] = full[TypeDirect]
	_, err = NewRegistry(full)
	assert.Error(t, err)
}

func TestDirectStrategy(t *testing.T) {
	env := newTestEnv(t, map[string]string{"https://zdf.de/a.mp4": "video"})
	dest := filepath.Join(env.dir, "a.mp4")
	job := NewJob("1", "A", VideoInfo{}, nil)

	var got []float64
	ok, err := env.strategy(t, TypeDirect).Execute(context.Background(),
		Item{SourceURL: "https://zdf.de/a.mp4", DestinationPath: dest, Type: TypeDirect}, job,
		func(p float64) { got = append(got, p) })
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []float64{50, 100}, got)

	ok, _ = env.strategy(t, TypeDirect).Execute(context.Background(),
		Item{SourceURL: "https://zdf.de/missing.mp4", DestinationPath: dest + "2", Type: TypeDirect}, job, nil)
	assert.False(t, ok)
}

func TestStreamingURLStrategy(t *testing.T) {
	env := newTestEnv(t, nil)
	dest := filepath.Join(env.dir, "a.strm")

	ok, err := env.strategy(t, TypeStreamingURL).Execute(context.Background(),
		Item{SourceURL: "https://zdf.de/master.m3u8", DestinationPath: dest, Type: TypeStreamingURL},
		NewJob("1", "A", VideoInfo{}, nil), nil)
	require.NoError(t, err)
	require.True(t, ok)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "https://zdf.de/master.m3u8", string(data))
}

func TestStreamStrategy_RemovesPartialOutputOnFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.encoder.ok = false
	dest := filepath.Join(env.dir, "a.mkv")

	ok, err := env.strategy(t, TypeStream).Execute(context.Background(),
		Item{SourceURL: "https://zdf.de/master.m3u8", DestinationPath: dest, Type: TypeStream},
		NewJob("1", "A", VideoInfo{}, nil), nil)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoFileExists(t, dest)
	require.Len(t, env.encoder.calls, 1)
	assert.Equal(t, dest, env.encoder.calls[0].output)
}

func TestAudioStrategy_DirectMode(t *testing.T) {
	tests := []struct {
		name string
		info VideoInfo
		want ffmpeg.AudioDisposition
	}{
		{"default language", VideoInfo{Language: "deu"}, ffmpeg.AudioDisposition{}},
		{"foreign language", VideoInfo{Language: "eng"}, ffmpeg.AudioDisposition{Original: true}},
		{"audio description", VideoInfo{Language: "deu", AudioDescription: true}, ffmpeg.AudioDisposition{VisualImpaired: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			dest := filepath.Join(env.dir, "a.mka")

			ok, err := env.strategy(t, TypeAudioExtraction).Execute(context.Background(),
				Item{SourceURL: "https://zdf.de/a.mp4", DestinationPath: dest, Type: TypeAudioExtraction},
				NewJob("1", "A", tt.info, nil), nil)
			require.NoError(t, err)
			require.True(t, ok)

			require.Len(t, env.encoder.calls, 1)
			call := env.encoder.calls[0]
			assert.Equal(t, tt.want, call.disp)
			assert.Equal(t, tt.info.Language, call.language)
			assert.True(t, strings.HasSuffix(call.output, ".mka"+TempSuffix))
			assert.FileExists(t, dest)
			assert.Empty(t, env.tempFiles(t))
		})
	}
}

func TestAudioStrategy_DirectModeValidationError(t *testing.T) {
	env := newTestEnv(t, nil)
	env.encoder.err = &transfer.ValidationError{URL: "http://evil.example/a.mp4", Reason: "domain not allowed"}
	dest := filepath.Join(env.dir, "a.mka")

	ok, err := env.strategy(t, TypeAudioExtraction).Execute(context.Background(),
		Item{SourceURL: "http://evil.example/a.mp4", DestinationPath: dest, Type: TypeAudioExtraction},
		NewJob("1", "A", VideoInfo{Language: "deu"}, nil), nil)
	assert.False(t, ok)
	var verr *transfer.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.NoFileExists(t, dest)
}

func TestAudioStrategy_DirectModeFailureRemovesTemp(t *testing.T) {
	env := newTestEnv(t, nil)
	env.encoder.ok = false
	dest := filepath.Join(env.dir, "a.mka")

	ok, err := env.strategy(t, TypeAudioExtraction).Execute(context.Background(),
		Item{SourceURL: "https://zdf.de/a.mp4", DestinationPath: dest, Type: TypeAudioExtraction},
		NewJob("1", "A", VideoInfo{Language: "deu"}, nil), nil)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoFileExists(t, dest)
	assert.Empty(t, env.tempFiles(t))
}

func TestAudioStrategy_LegacyMode(t *testing.T) {
	env := newTestEnv(t, map[string]string{"https://zdf.de/a.mp4": "full video"})
	env.deps.DirectAudioExtraction = false
	dest := filepath.Join(env.dir, "a.mka")

	var got []float64
	ok, err := env.strategy(t, TypeAudioExtraction).Execute(context.Background(),
		Item{SourceURL: "https://zdf.de/a.mp4", DestinationPath: dest, Type: TypeAudioExtraction},
		NewJob("1", "A", VideoInfo{Language: "eng"}, nil),
		func(p float64) { got = append(got, p) })
	require.NoError(t, err)
	require.True(t, ok)

	// download 0-80, extraction 80-100
	assert.Equal(t, []float64{40, 80, 80, 100}, got)

	require.Len(t, env.encoder.calls, 1)
	call := env.encoder.calls[0]
	assert.Equal(t, "full video", env.encoder.inputs[call.input])
	assert.Equal(t, dest, call.output)
	assert.Equal(t, "eng", call.language)
	assert.Empty(t, env.tempFiles(t))
}

func TestAudioStrategy_LegacyModeDownloadFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.deps.DirectAudioExtraction = false
	dest := filepath.Join(env.dir, "a.mka")

	ok, err := env.strategy(t, TypeAudioExtraction).Execute(context.Background(),
		Item{SourceURL: "https://zdf.de/gone.mp4", DestinationPath: dest, Type: TypeAudioExtraction},
		NewJob("1", "A", VideoInfo{Language: "deu"}, nil), nil)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, env.encoder.calls)
	assert.Empty(t, env.tempFiles(t))
}
