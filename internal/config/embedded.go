package config

// Build metadata injected at build time via ldflags.
//
// Build with:
//
//	go build -ldflags "-X 'github.com/mediathekdl/mediathekdl/internal/config.Version=1.2.3' \
//	                   -X 'github.com/mediathekdl/mediathekdl/internal/config.Commit=abcdef'"
var (
	Version = "dev"
	Commit  = ""
)

// UserAgent returns the User-Agent sent to upstream services.
func UserAgent() string {
	return "mediathekdl/" + Version
}
