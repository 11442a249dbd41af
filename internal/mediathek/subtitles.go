package mediathek

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Broadcaster hosts with their own subtitle layout.
const (
	zdfDomain = "zdf.de"
	ardDomain = "ardmediathek.de"
)

// ardSubtitlePattern matches .../subtitle/(ebutt|webvtt)/urn:...:<hex-id>(.vtt)?
var ardSubtitlePattern = regexp.MustCompile(`(?i)^(.+/subtitle)/(?:ebutt|webvtt)/(urn:[^/?#]*:)([0-9a-f]+)(?:\.vtt)?$`)

// NormalizeURL rewrites an http:// scheme to https:// unless allowHTTP is set.
// Host, path and query are preserved byte for byte.
func NormalizeURL(raw string, allowHTTP bool) string {
	if allowHTTP || len(raw) < len("http://") {
		return raw
	}
	if strings.EqualFold(raw[:len("http://")], "http://") {
		return "https://" + raw[len("http://"):]
	}
	return raw
}

// DeriveSubtitles returns the primary subtitle URL followed by the sibling
// representations derivable from it. No URL appears twice.
func DeriveSubtitles(primary string) []SubtitleURL {
	seen := make(map[string]struct{})
	out := make([]SubtitleURL, 0, 3)
	add := func(u string) {
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		out = append(out, SubtitleURL{URL: u, Type: ClassifySubtitle(u)})
	}

	add(primary)
	for _, u := range siblingSubtitles(primary) {
		add(u)
	}
	return out
}

func siblingSubtitles(primary string) []string {
	if m := ardSubtitlePattern.FindStringSubmatch(primary); m != nil {
		base, urn, id := m[1], m[2], m[3]
		return []string{
			base + "/ebutt/" + urn + id,
			base + "/webvtt/" + urn + id + ".vtt",
		}
	}

	u, err := url.Parse(primary)
	if err != nil || u.Host == "" {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	last := path.Base(u.Path)
	if u.Path == "" || last == "/" || last == "." {
		return nil
	}

	switch {
	case strings.Contains(host, zdfDomain):
		ext := path.Ext(last)
		if ext == "" {
			return nil
		}
		stem := strings.TrimSuffix(u.Path, ext)
		return []string{withPath(u, stem+".xml"), withPath(u, stem+".vtt")}

	case strings.Contains(host, ardDomain):
		if strings.Contains(last, ".") {
			return nil
		}
		trimmed := strings.TrimSuffix(u.Path, "/")
		return []string{withPath(u, trimmed+"/subtitle"), withPath(u, trimmed+"/webvtt")}
	}
	return nil
}

func withPath(u *url.URL, p string) string {
	c := *u
	c.Path = p
	c.RawPath = ""
	return c.String()
}

// ClassifySubtitle detects the subtitle format from its URL.
func ClassifySubtitle(raw string) SubtitleType {
	l := strings.ToLower(raw)
	p := l
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}

	switch {
	case strings.Contains(l, "ebutt"),
		strings.HasSuffix(p, ".xml"),
		strings.HasSuffix(p, ".ttml"),
		strings.HasSuffix(p, "subtitle"):
		return SubtitleTTML
	case strings.HasSuffix(p, ".vtt"),
		strings.Contains(l, "webvtt"):
		return SubtitleWebVTT
	default:
		return SubtitleUnknown
	}
}
