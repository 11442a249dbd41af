package subscription

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mediathekdl/mediathekdl/internal/downloader"
)

// LanguageUndetermined marks an original-version title whose language is
// not named.
const LanguageUndetermined = "und"

// VideoParser extracts episode information from an upstream title.
// A nil result means the title could not be used.
type VideoParser interface {
	Parse(topic, title string) *downloader.VideoInfo
}

// languageNames maps lower-case names found in "(...)" tags to ISO 639-2.
var languageNames = map[string]string{
	"deutsch": "deu", "german": "deu",
	"englisch": "eng", "english": "eng",
	"französisch": "fra", "french": "fra", "français": "fra",
	"italienisch": "ita", "italian": "ita", "italiano": "ita",
	"spanisch": "spa", "spanish": "spa", "español": "spa",
	"niederländisch": "nld", "dutch": "nld",
	"polnisch": "pol", "polish": "pol",
	"dänisch": "dan", "danish": "dan",
	"schwedisch": "swe", "swedish": "swe",
	"norwegisch": "nor", "norwegian": "nor",
	"finnisch": "fin", "finnish": "fin",
	"türkisch": "tur", "turkish": "tur",
	"russisch": "rus", "russian": "rus",
	"ukrainisch": "ukr", "ukrainian": "ukr",
	"arabisch": "ara", "arabic": "ara",
	"japanisch": "jpn", "japanese": "jpn",
}

var originalVersionTags = map[string]bool{
	"ov": true, "omu": true, "omeu": true, "originalversion": true, "originalversion mit untertitel": true,
}

var (
	parenRe     = regexp.MustCompile(`\(([^)]*)\)`)
	adRe        = regexp.MustCompile(`(?i)\b(AD|Audiodeskription|Hörfassung)\b`)
	signRe      = regexp.MustCompile(`(?i)\b(GS|Gebärdensprache|Gebärdendolmetscher)\b`)
	trailerRe   = regexp.MustCompile(`(?i)\bTrailer\b|^Darum geht's|Darum geht's$`)
	interviewRe = regexp.MustCompile(`(?i)\bInterview\b`)

	seasonEpisodeRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:s|staffel)[\s_.]*(\d+)[\s_.]*(?:/\s*e?|e|episode)[\s_.]*(\d+)`),
		regexp.MustCompile(`(?i)(\d+)\s*x\s*(\d+)`),
		regexp.MustCompile(`(?i)[(\[]s?\s*(\d+)\s*(?:e|/)\s*(\d+)[)\]]`),
		regexp.MustCompile(`(?i)\s*[(\[]?Staffel\s*(\d+),\s*Folge\s*(\d+)[)\]]?`),
	}
	absoluteRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Folge\s*(\d+)\b`),
		regexp.MustCompile(`\(\s*(\d+)\s*\)`),
		regexp.MustCompile(`^\s*(\d+)\.\s*`),
	}
	seasonOnlyRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:^|\s)Staffel\s*(\d+)\b`),
		regexp.MustCompile(`(?i)(?:^|\s)Season\s*(\d+)\b`),
		regexp.MustCompile(`(?i)[(\[]S(\d+)[)\]]`),
	}

	uaPrefixRe    = regexp.MustCompile(`(?i)^u\.a\.\s*`)
	datePartRe    = regexp.MustCompile(`\s*[·|\-]\s*\d{2}\.\d{2}\.\d{2,4}\s*[·|\-]?\s*`)
	folgePrefixRe = regexp.MustCompile(`(?i)^Folge\s*\d+:\s*`)
	separatorRe   = regexp.MustCompile(`_|(^|[^\d])\.([^\d]|$)`)
	edgeRe        = regexp.MustCompile(`^[\s\-:–]+|[\s\-:–]+$`)
	spacesRe      = regexp.MustCompile(`\s{2,}`)
)

// TitleParser is the default VideoParser for German broadcaster titles.
type TitleParser struct {
	DefaultLanguage string
}

// Parse extracts language, accessibility tags and numbering from title and
// strips them, leaving a clean episode title.
func (p TitleParser) Parse(topic, title string) *downloader.VideoInfo {
	if strings.TrimSpace(title) == "" {
		return nil
	}
	info := &downloader.VideoInfo{Title: title, Language: p.defaultLanguage()}
	rest := title

	if lang, cleaned, ok := detectLanguage(rest); ok {
		info.Language = lang
		rest = cleaned
	}
	if m := adRe.FindString(rest); m != "" {
		info.AudioDescription = true
		rest = removeTag(rest, m)
	}
	if m := signRe.FindString(rest); m != "" {
		info.SignLanguage = true
		rest = removeTag(rest, m)
	}

	for _, re := range seasonEpisodeRes {
		m := re.FindStringSubmatch(rest)
		if m == nil {
			continue
		}
		season, err1 := strconv.Atoi(m[1])
		episode, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			continue
		}
		info.Season, info.Episode, info.IsShow = &season, &episode, true
		rest = removeTag(rest, m[0])
		break
	}

	for _, re := range absoluteRes {
		m := re.FindStringSubmatch(rest)
		if m == nil {
			continue
		}
		abs, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		info.AbsoluteEpisode, info.IsShow = &abs, true
		rest = removeTag(rest, m[0])
		break
	}

	info.Trailer = trailerRe.MatchString(rest)
	info.Interview = interviewRe.MatchString(rest)

	if info.Season == nil {
		for _, re := range seasonOnlyRes {
			m := re.FindStringSubmatch(rest)
			if m == nil {
				continue
			}
			if season, err := strconv.Atoi(m[1]); err == nil {
				info.Season, info.IsShow = &season, true
				rest = removeTag(rest, m[0])
				break
			}
		}
	}

	if topic != "" && len(rest) >= len(topic) && strings.EqualFold(rest[:len(topic)], topic) {
		rest = strings.TrimLeft(rest[len(topic):], " \t:_-")
	}

	rest = uaPrefixRe.ReplaceAllString(rest, "")
	rest = datePartRe.ReplaceAllString(rest, " ")
	rest = folgePrefixRe.ReplaceAllString(strings.TrimSpace(rest), "")
	rest = separatorRe.ReplaceAllStringFunc(rest, func(s string) string {
		return strings.NewReplacer(".", " ", "_", " ").Replace(s)
	})
	rest = edgeRe.ReplaceAllString(rest, "")
	rest = strings.TrimSpace(spacesRe.ReplaceAllString(rest, " "))

	if rest != "" {
		info.Title = rest
	}
	return info
}

func (p TitleParser) defaultLanguage() string {
	if p.DefaultLanguage == "" {
		return "deu"
	}
	return p.DefaultLanguage
}

// detectLanguage looks for a "(Englisch)" or "(OV)" style tag.
func detectLanguage(title string) (string, string, bool) {
	for _, m := range parenRe.FindAllStringSubmatch(title, -1) {
		content := strings.ToLower(strings.TrimSpace(m[1]))
		if content == "" {
			continue
		}
		if originalVersionTags[content] {
			return LanguageUndetermined, collapse(strings.Replace(title, m[0], " ", 1)), true
		}
		if code, ok := languageNames[content]; ok {
			return code, collapse(strings.Replace(title, m[0], " ", 1)), true
		}
	}
	return "", title, false
}

// removeTag drops tag and any brackets directly around it.
func removeTag(title, tag string) string {
	re := regexp.MustCompile(`(?i)\s*[(\[]?\s*` + regexp.QuoteMeta(tag) + `\s*[)\]]?\s*`)
	return collapse(re.ReplaceAllString(title, " "))
}

func collapse(s string) string {
	return strings.TrimSpace(spacesRe.ReplaceAllString(s, " "))
}
