package downloader

import (
	"context"
	"os"
	"sync"

	"github.com/mediathekdl/mediathekdl/internal/ffmpeg"
	"github.com/mediathekdl/mediathekdl/internal/transfer"
)

// fakeTransfer serves bodies keyed by URL. Unknown URLs fail.
type fakeTransfer struct {
	mu      sync.Mutex
	bodies  map[string]string
	block   bool
	started chan struct{}
	calls   []string
}

func newFakeTransfer(bodies map[string]string) *fakeTransfer {
	return &fakeTransfer{bodies: bodies, started: make(chan struct{}, 16)}
}

func (f *fakeTransfer) Download(ctx context.Context, rawURL, dest string, progress transfer.ProgressFunc) bool {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	body, ok := f.bodies[rawURL]
	block := f.block
	f.mu.Unlock()

	f.started <- struct{}{}
	if block {
		<-ctx.Done()
		return false
	}
	if !ok {
		return false
	}
	if progress != nil {
		progress(50)
		progress(100)
	}
	return os.WriteFile(dest, []byte(body), 0o644) == nil
}

func (f *fakeTransfer) WriteStreamingURL(ctx context.Context, rawURL, dest string) bool {
	return os.WriteFile(dest, []byte(rawURL), 0o644) == nil
}

type audioCall struct {
	input, output, language string
	disp                    ffmpeg.AudioDisposition
}

// fakeEncoder writes output files instead of running ffmpeg.
type fakeEncoder struct {
	mu     sync.Mutex
	ok     bool
	err    error
	calls  []audioCall
	inputs map[string]string
}

func (f *fakeEncoder) record(c audioCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeEncoder) finish(output string, progress ffmpeg.ProgressFunc) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	// a failing encoder still leaves a partial file behind
	_ = os.WriteFile(output, []byte("audio"), 0o644)
	if progress != nil {
		progress(100)
	}
	return f.ok, nil
}

func (f *fakeEncoder) ExtractAudio(ctx context.Context, input, output, language string, progress ffmpeg.ProgressFunc) (bool, error) {
	data, _ := os.ReadFile(input)
	f.mu.Lock()
	if f.inputs == nil {
		f.inputs = map[string]string{}
	}
	f.inputs[input] = string(data)
	f.mu.Unlock()
	f.record(audioCall{input: input, output: output, language: language})
	return f.finish(output, progress)
}

func (f *fakeEncoder) ExtractAudioFromURL(ctx context.Context, url, output, language string, disp ffmpeg.AudioDisposition, progress ffmpeg.ProgressFunc) (bool, error) {
	f.record(audioCall{input: url, output: output, language: language, disp: disp})
	return f.finish(output, progress)
}

func (f *fakeEncoder) DownloadStream(ctx context.Context, url, output string, progress ffmpeg.ProgressFunc) (bool, error) {
	f.record(audioCall{input: url, output: output})
	return f.finish(output, progress)
}
