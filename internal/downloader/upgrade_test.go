package downloader

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediathekdl/mediathekdl/internal/testutil"
)

func runUpgrade(t *testing.T, env *testEnv, item Item) (bool, error) {
	t.Helper()
	return env.strategy(t, TypeQualityUpgrade).Execute(context.Background(), item, NewJob("1", "A", VideoInfo{}, nil), nil)
}

func TestUpgrade_EqualSizeLeavesExistingFile(t *testing.T) {
	env := newTestEnv(t, map[string]string{"https://zdf.de/hd.mp4": "BBBB"})
	dest := filepath.Join(env.dir, "ep.mp4")
	require.NoError(t, os.WriteFile(dest, []byte("AAAA"), 0o644))

	ok, err := runUpgrade(t, env, Item{SourceURL: "https://zdf.de/hd.mp4", DestinationPath: dest, Type: TypeQualityUpgrade})
	require.NoError(t, err)
	assert.False(t, ok)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "AAAA", string(data))
	assert.Empty(t, env.tempFiles(t))
}

func TestUpgrade_SmallerCandidateIsDiscarded(t *testing.T) {
	env := newTestEnv(t, map[string]string{"https://zdf.de/hd.mp4": "B"})
	dest := filepath.Join(env.dir, "ep.mp4")
	require.NoError(t, os.WriteFile(dest, []byte("AAAA"), 0o644))

	ok, err := runUpgrade(t, env, Item{SourceURL: "https://zdf.de/hd.mp4", DestinationPath: dest, Type: TypeQualityUpgrade})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, env.tempFiles(t))
}

func TestUpgrade_SamePathSwapsAndRemovesBackup(t *testing.T) {
	env := newTestEnv(t, map[string]string{"https://zdf.de/hd.mp4": "BIGGER CONTENT"})
	dest := filepath.Join(env.dir, "ep.mp4")
	require.NoError(t, os.WriteFile(dest, []byte("small"), 0o644))

	ok, err := runUpgrade(t, env, Item{SourceURL: "https://zdf.de/hd.mp4", DestinationPath: dest, ReplacePath: dest, Type: TypeQualityUpgrade})
	require.NoError(t, err)
	require.True(t, ok)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "BIGGER CONTENT", string(data))

	entries, err := os.ReadDir(env.dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".bak"), "backup %s left behind", e.Name())
	}
	assert.Empty(t, env.tempFiles(t))
}

func TestUpgrade_DifferentPathMovesThenDeletesOld(t *testing.T) {
	env := newTestEnv(t, map[string]string{"https://zdf.de/hd.mkv": "BIGGER CONTENT"})
	old := filepath.Join(env.dir, "ep.mp4")
	dest := filepath.Join(env.dir, "renamed", "ep.mkv")
	require.NoError(t, os.WriteFile(old, []byte("small"), 0o644))

	ok, err := runUpgrade(t, env, Item{SourceURL: "https://zdf.de/hd.mkv", DestinationPath: dest, ReplacePath: old, Type: TypeQualityUpgrade})
	require.NoError(t, err)
	require.True(t, ok)

	assert.NoFileExists(t, old)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "BIGGER CONTENT", string(data))
}

func TestUpgrade_RemoveReplacedLogsOnlyRealDeletes(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	s := &upgradeStrategy{logger: zerolog.New(&buf)}

	old := testutil.WriteFile(t, dir, "ep.mp4", []byte("small"))
	s.removeReplaced(old, filepath.Join(dir, "ep.mkv"))
	assert.NoFileExists(t, old)
	assert.Contains(t, buf.String(), "Deleted old file after upgrade")

	buf.Reset()
	s.removeReplaced(filepath.Join(dir, "gone.mp4"), filepath.Join(dir, "ep.mkv"))
	assert.NotContains(t, buf.String(), "Deleted old file")
	assert.Contains(t, buf.String(), "Old file already gone")
}

func TestUpgrade_MissingTargetFails(t *testing.T) {
	env := newTestEnv(t, map[string]string{"https://zdf.de/hd.mp4": "content"})
	dest := filepath.Join(env.dir, "ep.mp4")

	ok, err := runUpgrade(t, env, Item{SourceURL: "https://zdf.de/hd.mp4", DestinationPath: dest, Type: TypeQualityUpgrade})
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoFileExists(t, dest)
	assert.Empty(t, env.tempFiles(t))
}

func TestUpgrade_FailedSwapRestoresOriginal(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "ep.mp4")
	require.NoError(t, os.WriteFile(dest, []byte("original"), 0o644))

	s := &upgradeStrategy{logger: testutil.NopLogger()}
	err := s.swapInPlace(filepath.Join(dir, "vanished.mkv"+TempSuffix), dest)
	require.Error(t, err)

	data, readErr := os.ReadFile(dest)
	require.NoError(t, readErr)
	assert.Equal(t, "original", string(data))
}

func TestUpgrade_BackupHoldsOriginalUntilDeleted(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "ep.mp4")
	tmp := filepath.Join(dir, "new.mkv"+TempSuffix)
	require.NoError(t, os.WriteFile(dest, []byte("original"), 0o644))
	require.NoError(t, os.WriteFile(tmp, []byte("replacement"), 0o644))

	// stop right before the backup is deleted
	var backup string
	s := &upgradeStrategy{
		logger: testutil.NopLogger(),
		removeBackup: func(path string) error {
			backup = path
			return errors.New("interrupted")
		},
	}
	require.NoError(t, s.swapInPlace(tmp, dest))

	require.NotEmpty(t, backup)
	assert.True(t, strings.HasPrefix(filepath.Base(backup), "ep.mp4."))
	assert.True(t, strings.HasSuffix(backup, ".bak"))

	saved, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "original", string(saved))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "replacement", string(data))
	assert.NoFileExists(t, tmp)
}

func TestReplaceError(t *testing.T) {
	inner := errors.New("disk on fire")
	err := error(&ReplaceError{Path: "/lib/a.mp4", Err: inner})

	var rerr *ReplaceError
	require.True(t, errors.As(err, &rerr))
	assert.True(t, errors.Is(err, inner))
	assert.Contains(t, err.Error(), "/lib/a.mp4")
}

func TestUpgrade_SwapFailureReturnsReplaceError(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	env := newTestEnv(t, map[string]string{"https://zdf.de/hd.mp4": "BIGGER CONTENT"})
	libDir := filepath.Join(env.dir, "lib")
	require.NoError(t, os.MkdirAll(libDir, 0o755))
	dest := filepath.Join(libDir, "ep.mp4")
	require.NoError(t, os.WriteFile(dest, []byte("small"), 0o644))

	require.NoError(t, os.Chmod(libDir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(libDir, 0o755) })

	ok, err := runUpgrade(t, env, Item{SourceURL: "https://zdf.de/hd.mp4", DestinationPath: dest, Type: TypeQualityUpgrade})
	assert.False(t, ok)
	var rerr *ReplaceError
	require.True(t, errors.As(err, &rerr))

	data, readErr := os.ReadFile(dest)
	require.NoError(t, readErr)
	assert.Equal(t, "small", string(data))
	assert.Empty(t, env.tempFiles(t))
}
