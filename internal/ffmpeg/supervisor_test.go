package ffmpeg

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediathekdl/mediathekdl/internal/testutil"
)

func TestSupervisor_RunCapturesOutput(t *testing.T) {
	script := testutil.WriteScript(t, t.TempDir(), "ok.sh", `echo "out:$1"; echo "err line" >&2; exit 0`)
	sup := NewSupervisor(testutil.NewTestLogger(t))

	res, err := sup.Run(context.Background(), script, []string{"abc"}, nil)
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, "out:abc\n", string(res.Stdout))
	assert.Contains(t, res.Stderr, "err line")
	assert.Equal(t, 0, sup.Live())
}

func TestSupervisor_NonZeroExitIsNotAnError(t *testing.T) {
	script := testutil.WriteScript(t, t.TempDir(), "fail.sh", `echo "broken input" >&2; exit 3`)
	sup := NewSupervisor(testutil.NopLogger())

	res, err := sup.Run(context.Background(), script, nil, nil)
	require.NoError(t, err)
	assert.False(t, res.Success())
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Stderr, "broken input")
}

func TestSupervisor_DrainsLargeOutputOnBothStreams(t *testing.T) {
	script := testutil.WriteScript(t, t.TempDir(), "noisy.sh",
		`head -c 300000 /dev/zero | tr '\0' 'e' >&2; head -c 300000 /dev/zero | tr '\0' 'o'; exit 0`)
	sup := NewSupervisor(testutil.NopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	res, err := sup.Run(ctx, script, nil, nil)
	require.NoError(t, err)
	assert.Len(t, res.Stdout, 300000)
}

func TestSupervisor_ReportsProgress(t *testing.T) {
	script := testutil.WriteScript(t, t.TempDir(), "progress.sh", `
printf '  Duration: 00:01:40.00, start: 0.000000\n' >&2
printf 'size=1kB time=00:00:25.00 bitrate=1\r' >&2
printf 'size=2kB time=00:00:50.00 bitrate=1\r' >&2
printf 'size=3kB time=00:02:00.00 bitrate=1\n' >&2
`)
	sup := NewSupervisor(testutil.NopLogger())

	var mu sync.Mutex
	var got []float64
	_, err := sup.Run(context.Background(), script, nil, func(p float64) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{25, 50, 100}, got)
}

func TestSupervisor_CancelKillsProcessTree(t *testing.T) {
	script := testutil.WriteScript(t, t.TempDir(), "hang.sh", `sleep 30 & sleep 30`)
	sup := NewSupervisor(testutil.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for sup.Live() == 0 {
			time.Sleep(10 * time.Millisecond)
		}
		cancel()
	}()

	start := time.Now()
	_, err := sup.Run(ctx, script, nil, nil)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Less(t, time.Since(start), 10*time.Second, "descendants must not keep the pipes open")
	assert.Equal(t, 0, sup.Live())
}

func TestSupervisor_LeaderExitReapsBackgroundChild(t *testing.T) {
	script := testutil.WriteScript(t, t.TempDir(), "detach.sh", `sleep 30 & echo done; exit 0`)
	sup := NewSupervisor(testutil.NopLogger())

	start := time.Now()
	res, err := sup.Run(context.Background(), script, nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, "done\n", string(res.Stdout))
	assert.Less(t, time.Since(start), 10*time.Second, "a background child must not hold Run open")
	assert.Equal(t, 0, sup.Live())
}

func TestSupervisor_ShutdownKillsLiveAndRejectsNew(t *testing.T) {
	script := testutil.WriteScript(t, t.TempDir(), "hang.sh", `sleep 30`)
	sup := NewSupervisor(testutil.NopLogger())

	done := make(chan *Result, 1)
	go func() {
		res, _ := sup.Run(context.Background(), script, nil, nil)
		done <- res
	}()

	require.Eventually(t, func() bool { return sup.Live() == 1 }, 5*time.Second, 10*time.Millisecond)
	sup.Shutdown()

	select {
	case res := <-done:
		require.NotNil(t, res)
		assert.False(t, res.Success())
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}

	_, err := sup.Run(context.Background(), script, nil, nil)
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestSupervisor_StartFailure(t *testing.T) {
	sup := NewSupervisor(testutil.NopLogger())
	_, err := sup.Run(context.Background(), "/nonexistent/ffmpeg", nil, nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to start"))
}

func TestProgressParser(t *testing.T) {
	p := &progressParser{}

	if _, ok := p.parse("frame=1 time=00:00:01.00"); ok {
		t.Error("parse() before duration reported progress")
	}
	if _, ok := p.parse("Duration: 01:00:00.00, start"); ok {
		t.Error("parse() of duration line reported progress")
	}
	got, ok := p.parse("size=10kB time=00:15:00.00 bitrate=1")
	if !ok || got != 25 {
		t.Errorf("parse() = %v, %v, want 25, true", got, ok)
	}
}
