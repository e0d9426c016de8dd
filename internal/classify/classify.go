// Package classify recognizes the line shapes that feed the metric
// aggregators.
//
// Every raw line is matched once against the header pattern. The stricter
// per-family patterns are evaluated lazily and cached on the Line so that
// several aggregators can inspect the same line without repeating work.
package classify

import (
	"regexp"
	"strings"
	"time"

	"github.com/mixaill76/log_analyzer/internal/timestamp"
)

var (
	headerPattern     = regexp.MustCompile(`^(\d{17})\s+([A-Z]{4,5})\s+`)
	methodPattern     = regexp.MustCompile(`^(\d{17})\s+INFO - R \S+ (\w+) .*$`)
	payloadPattern    = regexp.MustCompile(`^(\d{17})\s+INFO - R \S+ (\w+) - (.*)$`)
	severityPattern   = regexp.MustCompile(`^(\d{17})\s+(FATAL|ERROR|WARN)\s+(.*)$`)
	liveStreamPattern = regexp.MustCompile(`^(\d{17})\s+INFO - LiveStreamHistory->(.*)$`)

	uuidPattern = regexp.MustCompile(` ?[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{12}`)
)

// Classifier turns raw lines into Lines. Timestamps are read as wall-clock
// time in the classifier's location.
type Classifier struct {
	loc *time.Location
}

// New creates a Classifier. A nil location means time.Local.
func New(loc *time.Location) *Classifier {
	if loc == nil {
		loc = time.Local
	}
	return &Classifier{loc: loc}
}

// Location returns the location timestamps are decoded in.
func (c *Classifier) Location() *time.Location {
	return c.loc
}

// Parse matches the header of raw. It returns false when the line has no
// "<timestamp> <LEVEL>" header or the timestamp does not decode.
func (c *Classifier) Parse(raw string) (*Line, bool) {
	raw = strings.TrimRight(raw, "\r\n")
	m := headerPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, false
	}
	ts, err := timestamp.Parse(m[1], c.loc)
	if err != nil {
		return nil, false
	}
	return &Line{Raw: raw, Token: m[1], Level: m[2], Time: ts}, true
}

// HeaderTime returns the timestamp of raw when it carries a valid header.
func (c *Classifier) HeaderTime(raw string) (time.Time, bool) {
	l, ok := c.Parse(raw)
	if !ok {
		return time.Time{}, false
	}
	return l.Time, true
}

// StripUUIDs removes UUID shaped substrings, together with one leading
// space, from msg.
func StripUUIDs(msg string) string {
	return uuidPattern.ReplaceAllString(msg, "")
}

// Line is a header-matched log line.
type Line struct {
	Raw   string
	Token string
	Level string
	Time  time.Time

	method   match
	payload  match
	severity match
	live     match
}

type match struct {
	done   bool
	ok     bool
	first  string
	second string
}

func (m *match) eval(re *regexp.Regexp, raw string, fn func([]string) (string, string)) {
	if m.done {
		return
	}
	m.done = true
	sub := re.FindStringSubmatch(raw)
	if sub == nil {
		return
	}
	m.ok = true
	m.first, m.second = fn(sub)
}

// Method returns the method name of a request line.
func (l *Line) Method() (string, bool) {
	l.method.eval(methodPattern, l.Raw, func(sub []string) (string, string) {
		return sub[2], ""
	})
	return l.method.first, l.method.ok
}

// Payload returns the method name and the raw payload text of a request
// line of the form "R <id> <method> - <payload>".
func (l *Line) Payload() (method, payload string, ok bool) {
	l.payload.eval(payloadPattern, l.Raw, func(sub []string) (string, string) {
		return sub[2], sub[3]
	})
	return l.payload.first, l.payload.second, l.payload.ok
}

// Severity returns the level and the UUID-stripped message of a FATAL,
// ERROR or WARN line.
func (l *Line) Severity() (level, message string, ok bool) {
	l.severity.eval(severityPattern, l.Raw, func(sub []string) (string, string) {
		return sub[2], StripUUIDs(sub[3])
	})
	return l.severity.first, l.severity.second, l.severity.ok
}

// LiveStream returns the JSON document of a LiveStreamHistory line.
func (l *Line) LiveStream() (string, bool) {
	l.live.eval(liveStreamPattern, l.Raw, func(sub []string) (string, string) {
		return sub[2], ""
	})
	return l.live.first, l.live.ok
}

// HourKey returns the yyyyMMddHH bucket of the line, taken from the
// leading digits of its token.
func (l *Line) HourKey() int64 {
	return prefixKey(l.Token, timestamp.HourWidth)
}

// DayKey returns the yyyyMMdd bucket of the line.
func (l *Line) DayKey() int64 {
	return prefixKey(l.Token, timestamp.DayWidth)
}

// TokenKey returns the full token as an integer.
func (l *Line) TokenKey() int64 {
	return prefixKey(l.Token, timestamp.Width)
}

func prefixKey(token string, n int) int64 {
	var v int64
	for i := 0; i < n && i < len(token); i++ {
		v = v*10 + int64(token[i]-'0')
	}
	return v
}
