package ffmpeg

import (
	"os"
	"os/exec"
	"runtime"
)

// findExecutable resolves a binary from an explicit path, then PATH, then
// the usual install locations for the platform. It returns "" if none exist.
func findExecutable(name, explicitPath string) string {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err == nil {
			return explicitPath
		}
	}

	if path, err := exec.LookPath(name); err == nil {
		return path
	}

	var commonPaths []string
	switch runtime.GOOS {
	case "darwin":
		commonPaths = []string{
			"/usr/local/bin/" + name,
			"/opt/homebrew/bin/" + name,
		}
	case "linux":
		commonPaths = []string{
			"/usr/bin/" + name,
			"/usr/local/bin/" + name,
			"/usr/lib/jellyfin-ffmpeg/" + name,
		}
	case "windows":
		commonPaths = []string{
			`C:\ffmpeg\bin\` + name + ".exe",
			`C:\Program Files\ffmpeg\bin\` + name + ".exe",
		}
	}

	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
