// Package timestamp converts the fixed-width numeric tokens that prefix log
// lines (yyyyMMddHHmmssSSS) to and from time.Time.
package timestamp

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	// Width is the number of digits in a full token.
	Width = 17
	// DayWidth is the number of digits of a day prefix (yyyyMMdd).
	DayWidth = 8
	// HourWidth is the number of digits of an hour prefix (yyyyMMddHH).
	HourWidth = 10

	secondsLayout = "20060102150405"
)

// ErrMalformed is returned for tokens that are not 17 digits or do not
// describe a real calendar instant.
var ErrMalformed = errors.New("timestamp: malformed token")

// Parse decodes a 17 digit token as wall-clock time in loc.
func Parse(token string, loc *time.Location) (time.Time, error) {
	if len(token) != Width || !digits(token) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformed, token)
	}
	if loc == nil {
		loc = time.Local
	}

	t, err := time.ParseInLocation(secondsLayout, token[:14], loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrMalformed, token, err)
	}
	ms, _ := strconv.Atoi(token[14:])
	t = t.Add(time.Duration(ms) * time.Millisecond)

	// Wall-clock times skipped by a DST transition are normalized by
	// time.ParseInLocation and would not format back to the same token.
	if Format(t) != token {
		return time.Time{}, fmt.Errorf("%w: %q does not exist in %s", ErrMalformed, token, loc)
	}
	return t, nil
}

// Format encodes t as a 17 digit token in t's location.
func Format(t time.Time) string {
	return t.Format(secondsLayout) + fmt.Sprintf("%03d", t.Nanosecond()/int(time.Millisecond))
}

// Valid reports whether token decodes in loc.
func Valid(token string, loc *time.Location) bool {
	_, err := Parse(token, loc)
	return err == nil
}

// Pad right-pads a prefix of at least DayWidth digits with zeros and parses
// it, giving the first instant of the period the prefix names.
func Pad(prefix string, loc *time.Location) (time.Time, error) {
	if len(prefix) < DayWidth || len(prefix) > Width || !digits(prefix) {
		return time.Time{}, fmt.Errorf("%w: prefix %q", ErrMalformed, prefix)
	}
	token := prefix
	for len(token) < Width {
		token += "0"
	}
	// Day and month cannot be zero, so a short prefix padded into those
	// positions is rejected by Parse.
	return Parse(token, loc)
}

// Day returns the yyyyMMdd prefix of a token.
func Day(token string) string {
	if len(token) < DayWidth {
		return token
	}
	return token[:DayWidth]
}

// Hour returns the yyyyMMddHH prefix of a token.
func Hour(token string) string {
	if len(token) < HourWidth {
		return token
	}
	return token[:HourWidth]
}

// HourKey returns the hour bucket of t as a yyyyMMddHH integer.
func HourKey(t time.Time) int64 {
	return DayKey(t)*100 + int64(t.Hour())
}

// DayKey returns the day bucket of t as a yyyyMMdd integer.
func DayKey(t time.Time) int64 {
	return int64(t.Year())*10000 + int64(t.Month())*100 + int64(t.Day())
}

// TokenKey returns the full 17 digit token of t as an integer.
func TokenKey(t time.Time) int64 {
	v, _ := strconv.ParseInt(Format(t), 10, 64)
	return v
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// StartOfHour truncates t to the hour in its own location.
func StartOfHour(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), 0, 0, 0, t.Location())
}

// StartOfMonth truncates t to the first day of its month.
func StartOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// AddDays moves t by n calendar days, keeping the wall clock time.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// AddMonths moves the first day of t's month by n months.
func AddMonths(t time.Time, n int) time.Time {
	return StartOfMonth(t).AddDate(0, n, 0)
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
