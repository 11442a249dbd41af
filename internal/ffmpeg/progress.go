package ffmpeg

import (
	"regexp"
	"strconv"
	"time"
)

var (
	durationPattern = regexp.MustCompile(`Duration:\s+(\d{2}:\d{2}:\d{2}\.\d+)`)
	timePattern     = regexp.MustCompile(`time=(\d{2}:\d{2}:\d{2}\.\d+)`)
)

// progressParser turns encoder status lines into percentages once the
// input duration has been announced.
type progressParser struct {
	total time.Duration
}

func (p *progressParser) parse(line string) (float64, bool) {
	if p.total == 0 {
		if m := durationPattern.FindStringSubmatch(line); m != nil {
			if d, ok := parseClock(m[1]); ok {
				p.total = d
			}
		}
	}
	if p.total == 0 {
		return 0, false
	}

	m := timePattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	cur, ok := parseClock(m[1])
	if !ok {
		return 0, false
	}
	pct := cur.Seconds() / p.total.Seconds() * 100
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

// parseClock parses HH:MM:SS.frac.
func parseClock(s string) (time.Duration, bool) {
	if len(s) < 8 {
		return 0, false
	}
	h, err1 := strconv.Atoi(s[0:2])
	m, err2 := strconv.Atoi(s[3:5])
	sec, err3 := strconv.ParseFloat(s[6:], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec*float64(time.Second))
	return d, true
}
