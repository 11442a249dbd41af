// Package ffmpeg runs the external encoder and prober as supervised
// subprocesses that are force-killed, descendants included, on
// cancellation or host shutdown.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrShuttingDown is returned when a process is requested after Shutdown.
var ErrShuttingDown = errors.New("process supervisor is shutting down")

// ProgressFunc receives completion percentages in [0, 100].
type ProgressFunc func(percent float64)

// Result is the outcome of a finished process.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   string
}

// Success reports a zero exit code.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Supervisor starts subprocesses and tracks them until they exit.
type Supervisor struct {
	logger zerolog.Logger

	mu       sync.Mutex
	live     map[*exec.Cmd]struct{}
	shutdown bool
}

// NewSupervisor creates a supervisor with an empty live set.
func NewSupervisor(logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		logger: logger.With().Str("component", "ffmpeg").Logger(),
		live:   make(map[*exec.Cmd]struct{}),
	}
}

// Run executes binary with args and waits for it to exit. Stdout and stderr
// are drained concurrently. A non-zero exit is reported through the Result,
// not as an error. When ctx is cancelled the process group is killed and
// ctx.Err() is returned.
func (s *Supervisor) Run(ctx context.Context, binary string, args []string, progress ProgressFunc) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(binary, args...)
	configureProcessGroup(cmd)

	// Plain files instead of StdoutPipe so Wait returns when the leader
	// exits, even if a descendant still holds the write ends.
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout: %w", err)
	}
	defer outR.Close()
	errR, errW, err := os.Pipe()
	if err != nil {
		outW.Close()
		return nil, fmt.Errorf("failed to open stderr: %w", err)
	}
	defer errR.Close()
	cmd.Stdout = outW
	cmd.Stderr = errW

	release, err := s.start(cmd)
	outW.Close()
	errW.Close()
	if err != nil {
		return nil, err
	}
	defer release()

	stop := context.AfterFunc(ctx, func() {
		s.logger.Info().Str("binary", binary).Int("pid", cmd.Process.Pid).Msg("cancelling process")
		s.kill(cmd)
	})
	defer stop()

	var outBuf, errBuf bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(&outBuf, outR)
		return err
	})
	g.Go(func() error {
		return drainStderr(errR, &errBuf, progress)
	})

	waitErr := cmd.Wait()
	// The leader is gone; kill what is left of its group so the pipes close.
	_ = killProcessGroup(cmd)
	drainErr := g.Wait()

	res := &Result{
		ExitCode: exitCode(cmd, waitErr),
		Stdout:   outBuf.Bytes(),
		Stderr:   errBuf.String(),
	}

	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if drainErr != nil && waitErr == nil {
		s.logger.Warn().Err(drainErr).Str("binary", binary).Msg("failed to read process output")
	}
	if res.ExitCode != 0 {
		s.logger.Error().
			Str("binary", binary).
			Int("exitCode", res.ExitCode).
			Str("stderr", tail(res.Stderr, 2048)).
			Msg("process exited with failure")
	}
	return res, nil
}

// start launches cmd and adds it to the live set. The returned release
// func removes it again and kills any leftover process group.
func (s *Supervisor) start(cmd *exec.Cmd) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return nil, ErrShuttingDown
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}
	s.live[cmd] = struct{}{}

	return func() {
		s.mu.Lock()
		delete(s.live, cmd)
		s.mu.Unlock()
		// Reap descendants that outlived the leader.
		killProcessGroup(cmd)
	}, nil
}

func (s *Supervisor) kill(cmd *exec.Cmd) {
	if err := killProcessGroup(cmd); err != nil {
		s.logger.Warn().Err(err).Int("pid", cmd.Process.Pid).Msg("failed to kill process")
	}
}

// Live returns the number of running processes.
func (s *Supervisor) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Shutdown kills every live process and rejects further starts.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	s.shutdown = true
	procs := make([]*exec.Cmd, 0, len(s.live))
	for cmd := range s.live {
		procs = append(procs, cmd)
	}
	s.mu.Unlock()

	for _, cmd := range procs {
		s.kill(cmd)
	}
	if len(procs) > 0 {
		s.logger.Info().Int("count", len(procs)).Msg("killed live processes on shutdown")
	}
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if code := exitErr.ExitCode(); code != 0 {
			return code
		}
	}
	if cmd.ProcessState != nil && cmd.ProcessState.ExitCode() > 0 {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

// drainStderr copies stderr into buf and feeds progress lines to the parser.
// The encoder rewrites its status line with carriage returns.
func drainStderr(r io.Reader, buf *bytes.Buffer, progress ProgressFunc) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanLinesOrCR)

	parser := &progressParser{}
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		if progress != nil {
			if pct, ok := parser.parse(line); ok {
				progress(pct)
			}
		}
	}
	return scanner.Err()
}

func scanLinesOrCR(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
