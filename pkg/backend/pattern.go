package backend

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// TokenVersion is replaced by the version id
	TokenVersion = "{{version}}"
	// TokenDate is replaced by the unix timestamp of the write
	TokenDate = "{{date}}"
	// DefaultFilePattern is used when no pattern is configured
	DefaultFilePattern = TokenVersion + "." + TokenDate

	versionExpr = `(?P<version>[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})`
	dateExpr    = `(?P<date>[\d.]+)`
)

// Pattern encodes version id and creation time into object names.
//
// A rendered name is the template with both tokens substituted, followed by
// "-" and the key. Parsing a name recovers version id and timestamp.
type Pattern struct {
	raw string
	// literal parts around the tokens, in template order
	parts        []string
	versionFirst bool
}

// NewPattern validates the template, which must contain each token exactly once.
func NewPattern(template string) (*Pattern, error) {
	if template == "" {
		template = DefaultFilePattern
	}
	if n := strings.Count(template, TokenVersion); n != 1 {
		return nil, errors.Errorf("file pattern %q must contain %s exactly once", template, TokenVersion)
	}
	if n := strings.Count(template, TokenDate); n != 1 {
		return nil, errors.Errorf("file pattern %q must contain %s exactly once", template, TokenDate)
	}

	vi := strings.Index(template, TokenVersion)
	di := strings.Index(template, TokenDate)
	p := &Pattern{raw: template, versionFirst: vi < di}

	first, second := TokenVersion, TokenDate
	if !p.versionFirst {
		first, second = TokenDate, TokenVersion
	}
	head, rest, _ := strings.Cut(template, first)
	middle, tail, _ := strings.Cut(rest, second)
	p.parts = []string{head, middle, tail}
	return p, nil
}

// String returns the raw template.
func (p *Pattern) String() string {
	return p.raw
}

// Render returns the object name for a version of key written at stamp.
func (p *Pattern) Render(versionID string, stamp float64, key string) string {
	return p.render(versionID, FormatStamp(stamp), key, nil)
}

// Glob returns a filepath.Match pattern matching any write time of versionID.
func (p *Pattern) Glob(versionID, key string) string {
	return p.render(escapeGlob(versionID), "*", key, escapeGlob)
}

// Regexp returns the expression matching names of key.
// The version id is captured in the group "version", the timestamp in "date".
func (p *Pattern) Regexp(key string) *regexp.Regexp {
	expr := p.render(versionExpr, dateExpr, key, regexp.QuoteMeta)
	return regexp.MustCompile("^" + expr + "$")
}

// Matcher returns a parser for names of key.
func (p *Pattern) Matcher(key string) func(name string) (string, float64, bool) {
	re := p.Regexp(key)
	vi, di := re.SubexpIndex("version"), re.SubexpIndex("date")
	return func(name string) (string, float64, bool) {
		m := re.FindStringSubmatch(name)
		if m == nil {
			return "", 0, false
		}
		stamp, err := strconv.ParseFloat(m[di], 64)
		if err != nil {
			return "", 0, false
		}
		return m[vi], stamp, true
	}
}

// Parse extracts version id and write time from a name of key.
func (p *Pattern) Parse(name, key string) (string, float64, bool) {
	return p.Matcher(key)(name)
}

func (p *Pattern) render(version, date, key string, quote func(string) string) string {
	if quote == nil {
		quote = func(s string) string { return s }
	}
	first, second := version, date
	if !p.versionFirst {
		first, second = date, version
	}
	var b strings.Builder
	b.WriteString(quote(p.parts[0]))
	b.WriteString(first)
	b.WriteString(quote(p.parts[1]))
	b.WriteString(second)
	b.WriteString(quote(p.parts[2]))
	b.WriteString(quote("-" + key))
	return b.String()
}

// ------------------------------------------------------------------------------------------------
// ~ Timestamps
// ------------------------------------------------------------------------------------------------

// Stamp converts t to fractional unix seconds.
func Stamp(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// FormatStamp renders stamp in the shortest form that parses back to the same value.
func FormatStamp(stamp float64) string {
	return strconv.FormatFloat(stamp, 'f', -1, 64)
}

// StampTime converts fractional unix seconds to a time.
func StampTime(stamp float64) time.Time {
	sec, frac := math.Modf(stamp)
	return time.Unix(int64(sec), int64(math.Round(frac*float64(time.Second))))
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
