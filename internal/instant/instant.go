package instant

import (
	"fmt"
	"strings"
	"time"
)

// DefaultTolerance is the largest gap, exclusive, under which two timestamps
// describe the same moment.
const DefaultTolerance = 300 * time.Second

// DefaultWindowDays is the number of days after the seed date still
// considered part of a scheduling window.
const DefaultWindowDays = 7

var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05-07:00",
	"2006-01-02T15:04-07:00",
	"2006-01-02 15:04:05-07:00",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Parse converts a timestamp string into a UTC instant. A trailing Z and a
// zero millisecond fraction are folded into the explicit +00:00 form before
// parsing, and values without an offset are read as UTC.
func Parse(s string) (time.Time, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	v := raw
	if strings.HasSuffix(v, "Z") || strings.HasSuffix(v, "z") {
		v = v[:len(v)-1] + "+00:00"
	}
	v = strings.Replace(v, ".000+00:00", "+00:00", 1)
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) time.Time {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Same reports whether a and b are strictly less than tolerance apart.
func Same(a, b time.Time, tolerance time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d < tolerance
}

// Date truncates t to midnight of its UTC calendar date.
func Date(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDate reports whether a and b fall on the same UTC calendar date.
func SameDate(a, b time.Time) bool {
	return Date(a).Equal(Date(b))
}

// Window is a range of UTC calendar dates, inclusive at both ends.
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowFrom returns the dates from seed's date through days later.
func WindowFrom(seed time.Time, days int) Window {
	start := Date(seed)
	return Window{Start: start, End: start.AddDate(0, 0, days)}
}

func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Contains reports whether t's UTC date lies inside the window.
func (w Window) Contains(t time.Time) bool {
	d := Date(t)
	return !d.Before(w.Start) && !d.After(w.End)
}

func (w Window) String() string {
	return w.Start.Format("2006-01-02") + ".." + w.End.Format("2006-01-02")
}
