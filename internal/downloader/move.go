package downloader

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// moveFile renames src to dst. Only when the two live on different volumes
// does it copy instead: into a temp sibling of dst that is renamed into
// place, so dst is never observed half written.
func moveFile(src, dst string) error {
	return moveFileWith(os.Rename, src, dst)
}

func moveFileWith(rename func(oldpath, newpath string) error, src, dst string) error {
	err := rename(src, dst)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*"+TempSuffix)
	if err != nil {
		return fmt.Errorf("failed to create temp file next to %s: %w", dst, err)
	}
	tmp := out.Name()

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	in.Close()
	return os.Remove(src)
}
