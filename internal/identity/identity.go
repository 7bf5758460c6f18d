// Package identity derives stable item identifiers and acquisition times from
// source filenames.
//
// Filename grammar, tried in order:
//
//	s<YYYYMMDD>[HHMMSS][digits][_e<YYYYMMDD>[HHMMSS][digits]]  start (and end) timestamp
//	<YYYYMMDD>                                               calendar day, start = end = midnight
//
// The "s" must begin the filename or follow one of "_", "-" or ".". When
// nothing matches, start and end are both FallbackTime and Identity.Fallback
// is set.
//
// Item ids have the form
//
//	<prefix>_<start as 20060102T150405>_<hash>
//
// where prefix is the filename token before the first underscore (restricted
// to letters, digits and "-"), and hash is the first 8 hex digits of the
// SHA-256 of the base filename. Ids are therefore stable for a filename and
// differ for distinct filenames even when they share a prefix and timestamp.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

// FallbackTime is assigned when a filename carries no recognizable date.
var FallbackTime = time.Date(2023, 7, 7, 0, 0, 0, 0, time.UTC)

// ErrIDConflict is returned when two distinct sources derive the same id.
var ErrIDConflict = errors.New("item id conflict")

// Grammar records which rule produced an Identity's timestamps.
type Grammar string

const (
	GrammarStartEnd Grammar = "start-end"
	GrammarStart    Grammar = "start"
	GrammarDate     Grammar = "date"
	GrammarFallback Grammar = "fallback"
)

const (
	idTimeLayout = "20060102T150405"
	hashLength   = 8
)

var (
	startEndPattern = regexp.MustCompile(`(?:^|[_.\-])s(\d{8})(\d{6})?\d*(?:_e(\d{8})(\d{6})?\d*)?`)
	datePattern     = regexp.MustCompile(`(\d{4})(\d{2})(\d{2})`)
	unsafeIDChars   = regexp.MustCompile(`[^A-Za-z0-9\-]+`)
)

// Identity is the derived identity of one source asset.
type Identity struct {
	ID       string
	Filename string
	Start    time.Time
	End      time.Time
	Grammar  Grammar
}

// Fallback reports whether the timestamps are the degraded default.
func (id Identity) Fallback() bool {
	return id.Grammar == GrammarFallback
}

// Day returns the UTC day the item belongs to.
func (id Identity) Day() time.Time {
	return Day(id.Start)
}

// Base returns the filename without its extension.
func (id Identity) Base() string {
	return strings.TrimSuffix(id.Filename, path.Ext(id.Filename))
}

// Derive computes the identity of a source filename or URL. It never fails;
// filenames without a date get FallbackTime.
func Derive(source string) Identity {
	filename := Filename(source)
	start, end, grammar := deriveTimes(filename)
	return Identity{
		ID:       newID(filename, start),
		Filename: filename,
		Start:    start,
		End:      end,
		Grammar:  grammar,
	}
}

// Filename returns the last path element of a URL, key, or path, without
// query or fragment.
func Filename(source string) string {
	if i := strings.IndexAny(source, "?#"); i >= 0 {
		source = source[:i]
	}
	source = strings.TrimRight(source, "/")
	if i := strings.LastIndexAny(source, `/\`); i >= 0 {
		source = source[i+1:]
	}
	return source
}

func deriveTimes(filename string) (time.Time, time.Time, Grammar) {
	for _, m := range startEndPattern.FindAllStringSubmatch(filename, -1) {
		start, ok := parseStamp(m[1], m[2])
		if !ok {
			continue
		}
		if m[3] == "" {
			return start, start, GrammarStart
		}
		end, ok := parseStamp(m[3], m[4])
		if !ok || end.Before(start) {
			return start, start, GrammarStart
		}
		return start, end, GrammarStartEnd
	}

	if day, ok := firstDate(filename); ok {
		return day, day, GrammarDate
	}

	return FallbackTime, FallbackTime, GrammarFallback
}

func parseStamp(date, clock string) (time.Time, bool) {
	if clock == "" {
		clock = "000000"
	}
	t, err := time.ParseInLocation("20060102150405", date+clock, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func newID(filename string, start time.Time) string {
	prefix := filename
	if i := strings.Index(prefix, "_"); i >= 0 {
		prefix = prefix[:i]
	}
	prefix = strings.TrimSuffix(prefix, path.Ext(prefix))
	prefix = strings.Trim(unsafeIDChars.ReplaceAllString(prefix, "-"), "-")
	if prefix == "" {
		prefix = "item"
	}

	sum := sha256.Sum256([]byte(filename))
	return fmt.Sprintf("%s_%s_%s", prefix, start.UTC().Format(idTimeLayout), hex.EncodeToString(sum[:])[:hashLength])
}

// DateInKey extracts the date from the first 8-digit YYYYMMDD run in an
// object key. Keys without one, or whose first run is not a real date,
// report false.
func DateInKey(key string) (time.Time, bool) {
	return firstDate(key)
}

// firstDate only considers the first match; a later run is never used.
func firstDate(s string) (time.Time, bool) {
	m := datePattern.FindString(s)
	if m == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("20060102", m, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Claims enforces id uniqueness among the sources of one bucket.
type Claims struct {
	sources map[string]string
}

// NewClaims creates an empty claim set.
func NewClaims() *Claims {
	return &Claims{sources: make(map[string]string)}
}

// Claim records that id belongs to source. Claiming the same id again for the
// same source is a no-op; claiming it for a different source fails with
// ErrIDConflict.
func (c *Claims) Claim(id, source string) error {
	if owner, ok := c.sources[id]; ok && owner != source {
		return fmt.Errorf("%w: %q derived from both %q and %q", ErrIDConflict, id, owner, source)
	}
	c.sources[id] = source
	return nil
}
