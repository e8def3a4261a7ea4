package match

import (
	"strings"
	"time"

	"pabench/internal/domain"
	"pabench/internal/instant"
)

// GoogleMeet is the location literal satisfied by conference data rather
// than the location field.
const GoogleMeet = "Google Meet"

type TitleMode string

const (
	TitleExact    TitleMode = "exact"
	TitleContains TitleMode = "contains"
)

// EventQuery is the signature an event has to satisfy. Zero-valued fields
// do not constrain the match.
type EventQuery struct {
	Title     string
	TitleMode TitleMode

	// Window restricts the start date to a range of UTC dates.
	Window instant.Window
	// Start and End pin the event to fixed instants within Tolerance.
	Start     time.Time
	End       time.Time
	Tolerance time.Duration
	// CoverFrom and CoverTo require the event to span the whole range.
	CoverFrom time.Time
	CoverTo   time.Time

	Location     string
	Participants []string
	Organizer    string
	Excluded     []string
	// Text must appear in the title or description, case-insensitively.
	Text string
}

// FindEvent returns the first event satisfying q. Events whose timestamps
// cannot be parsed are skipped.
func FindEvent(events []domain.Event, q EventQuery) (domain.Event, bool) {
	for _, ev := range events {
		if q.Matches(ev) {
			return ev, true
		}
	}
	return domain.Event{}, false
}

// EventExists reports whether an event with id is in events.
func EventExists(events []domain.Event, id string) bool {
	for _, ev := range events {
		if ev.ID == id {
			return true
		}
	}
	return false
}

func (q EventQuery) Matches(ev domain.Event) bool {
	if !TitleMatches(ev.Title, q.Title, q.TitleMode) {
		return false
	}
	start, err := instant.Parse(ev.Start)
	if err != nil {
		return false
	}
	end, err := instant.Parse(ev.End)
	if err != nil {
		return false
	}
	tol := q.Tolerance
	if tol <= 0 {
		tol = instant.DefaultTolerance
	}
	if !q.Window.IsZero() && !q.Window.Contains(start) {
		return false
	}
	if !q.Start.IsZero() && !instant.Same(start, q.Start, tol) {
		return false
	}
	if !q.End.IsZero() && !instant.Same(end, q.End, tol) {
		return false
	}
	if !q.CoverFrom.IsZero() && start.After(q.CoverFrom) {
		return false
	}
	if !q.CoverTo.IsZero() && end.Before(q.CoverTo) {
		return false
	}
	if !LocationMatches(ev, q.Location) {
		return false
	}
	present := Present(ev.Attendees)
	if len(q.Participants) > 0 {
		if ok, _ := Covers(q.Participants, present); !ok {
			return false
		}
	}
	for _, x := range q.Excluded {
		if Contains(present, x) {
			return false
		}
	}
	if q.Organizer != "" && !IsOrganizer(ev, q.Organizer) {
		return false
	}
	if q.Text != "" {
		needle := strings.ToLower(q.Text)
		hay := strings.ToLower(ev.Title + " " + ev.Description)
		if !strings.Contains(hay, needle) {
			return false
		}
	}
	return true
}

// TitleMatches compares an event title with the expected one. An empty
// expectation matches any title.
func TitleMatches(title, want string, mode TitleMode) bool {
	if want == "" {
		return true
	}
	if mode == TitleContains {
		return strings.Contains(strings.ToLower(title), strings.ToLower(want))
	}
	return title == want
}

// LocationMatches applies the location rule: Google Meet is read from the
// conference data, anything else must be a substring of the location.
func LocationMatches(ev domain.Event, want string) bool {
	switch {
	case want == "":
		return true
	case want == GoogleMeet:
		return ev.ConferenceName() == GoogleMeet
	default:
		return strings.Contains(ev.Location, want)
	}
}

// IsOrganizer reports whether email is an attendee flagged as organizer.
func IsOrganizer(ev domain.Event, email string) bool {
	n := NormalizeEmail(email)
	for _, a := range ev.Attendees {
		if NormalizeEmail(a.Email) == n && a.IsOrganizer {
			return true
		}
	}
	return false
}
