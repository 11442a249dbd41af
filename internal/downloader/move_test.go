package downloader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediathekdl/mediathekdl/internal/testutil"
)

func TestMoveFile_SameVolume(t *testing.T) {
	dir := t.TempDir()
	src := testutil.WriteFile(t, dir, "a.tmp", []byte("video"))
	dst := filepath.Join(dir, "a.mkv")

	require.NoError(t, moveFile(src, dst))
	assert.NoFileExists(t, src)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "video", string(data))
}

func TestMoveFile_CrossDeviceCopiesThroughTempSibling(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()
	src := testutil.WriteFile(t, srcDir, "a.tmp", []byte("video"))
	dst := filepath.Join(dstDir, "a.mkv")

	calls := 0
	rename := func(oldpath, newpath string) error {
		calls++
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: errCrossDevice}
	}

	require.NoError(t, moveFileWith(rename, src, dst))
	assert.Equal(t, 1, calls)
	assert.NoFileExists(t, src)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "video", string(data))

	entries, err := os.ReadDir(dstDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp sibling may remain")
}

func TestMoveFile_OtherRenameErrorsDoNotCopy(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()
	src := testutil.WriteFile(t, srcDir, "a.tmp", []byte("video"))
	dst := filepath.Join(dstDir, "a.mkv")
	denied := errors.New("permission denied")

	err := moveFileWith(func(string, string) error { return denied }, src, dst)
	assert.ErrorIs(t, err, denied)
	assert.FileExists(t, src)
	assert.NoFileExists(t, dst)
}
