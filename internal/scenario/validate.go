package scenario

import (
	"fmt"
	"strings"

	"pabench/internal/instant"
	"pabench/internal/match"
)

// DefaultKeywords mark an email as announcing a cancellation.
var DefaultKeywords = []string{"cancel", "cancellation", "cancelled"}

// Issue captures one problem in an expectation.
type Issue struct {
	Field   string
	Message string
}

// ValidationError reports every issue found in an expectation.
type ValidationError struct {
	Issues []Issue
}

func (err *ValidationError) Error() string {
	if err == nil || len(err.Issues) == 0 {
		return ""
	}
	parts := make([]string, 0, len(err.Issues))
	for _, issue := range err.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", issue.Field, issue.Message))
	}
	return fmt.Sprintf("expectation validation failed: %s", strings.Join(parts, "; "))
}

type issueCollector struct {
	issues []Issue
}

func (c *issueCollector) add(field, message string) {
	c.issues = append(c.issues, Issue{Field: field, Message: message})
}

func (c *issueCollector) required(field, value string) {
	if value == "" {
		c.add(field, "is required")
	}
}

func (c *issueCollector) timestamp(field, value string) {
	if value == "" {
		c.add(field, "is required")
		return
	}
	if _, err := instant.Parse(value); err != nil {
		c.add(field, err.Error())
	}
}

func (c *issueCollector) result() error {
	if len(c.issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: c.issues}
}

// Normalize trims the expectation, fills defaults and validates the fields
// its kind relies on.
func Normalize(e Expectation) (Expectation, error) {
	c := &issueCollector{}
	e.Meetings = append([]Meeting(nil), e.Meetings...)
	e.Stale = append([]Slot(nil), e.Stale...)
	e.Legs = append([]Leg(nil), e.Legs...)
	e.Kind = Kind(strings.ToLower(strings.TrimSpace(string(e.Kind))))
	e.Self = match.NormalizeEmail(e.Self)
	e.Title = strings.TrimSpace(e.Title)
	e.Location = strings.TrimSpace(e.Location)
	e.TitleMatch = strings.ToLower(strings.TrimSpace(e.TitleMatch))
	e.ExtraGuests = trimAll(e.ExtraGuests)
	e.Keywords = trimAll(e.Keywords)
	e.OriginalCC = trimAll(e.OriginalCC)
	e.ThreadID = strings.TrimSpace(e.ThreadID)
	e.Organizer = strings.TrimSpace(e.Organizer)
	e.EventID = strings.TrimSpace(e.EventID)
	if e.TitleMatch == "" {
		e.TitleMatch = string(match.TitleExact)
	}
	if e.TitleMatch != string(match.TitleExact) && e.TitleMatch != string(match.TitleContains) {
		c.add("title_match", fmt.Sprintf("unsupported mode %q", e.TitleMatch))
	}
	if e.WindowDays < 0 {
		c.add("window_days", "must be >= 0")
	}
	if e.WindowDays == 0 {
		e.WindowDays = instant.DefaultWindowDays
	}
	if e.ToleranceSeconds < 0 {
		c.add("tolerance_seconds", "must be >= 0")
	}

	switch e.Kind {
	case "":
		c.add("kind", "is required")
	case KindScheduling:
		c.required("title", e.Title)
		validateSeed(c, e.Seed)
	case KindRescheduling:
		if len(e.Meetings) == 0 && len(e.Stale) == 0 {
			c.add("meetings", "must include at least one meeting or stale slot")
		}
		names := map[string]struct{}{}
		for i := range e.Meetings {
			m := &e.Meetings[i]
			prefix := fmt.Sprintf("meetings[%d]", i)
			m.Name = strings.TrimSpace(m.Name)
			m.TitleContains = strings.TrimSpace(m.TitleContains)
			c.required(prefix+".name", m.Name)
			uniqueName(c, names, prefix+".name", m.Name, m.Name+"_meeting_check")
			c.timestamp(prefix+".start", m.Start)
			if m.End != "" {
				c.timestamp(prefix+".end", m.End)
			}
			m.Participants = trimAll(m.Participants)
			m.Excluded = trimAll(m.Excluded)
		}
		for i := range e.Stale {
			s := &e.Stale[i]
			prefix := fmt.Sprintf("stale[%d]", i)
			s.Name = strings.TrimSpace(s.Name)
			s.TitleContains = strings.TrimSpace(s.TitleContains)
			c.required(prefix+".name", s.Name)
			uniqueName(c, names, prefix+".name", s.Name, "old_"+s.Name+"_check")
			c.required(prefix+".title_contains", s.TitleContains)
			c.timestamp(prefix+".start", s.Start)
		}
	case KindCancellation:
		c.required("event_id", e.EventID)
		c.timestamp("target_date", e.TargetDate)
		if len(e.Keywords) == 0 {
			e.Keywords = append([]string(nil), DefaultKeywords...)
		}
	case KindReplyAll, KindConflictDetection:
		c.required("thread_id", e.ThreadID)
		c.required("organizer", e.Organizer)
		c.required("self", e.Self)
	case KindTravel:
		if len(e.Legs) == 0 {
			c.add("legs", "must include at least one entry")
		}
		names := map[string]struct{}{}
		for i := range e.Legs {
			l := &e.Legs[i]
			prefix := fmt.Sprintf("legs[%d]", i)
			l.Name = strings.TrimSpace(l.Name)
			l.FlightNumber = strings.TrimSpace(l.FlightNumber)
			c.required(prefix+".name", l.Name)
			uniqueName(c, names, prefix+".name", l.Name, l.Name)
			c.required(prefix+".flight_number", l.FlightNumber)
			c.timestamp(prefix+".departure", l.Departure)
			c.timestamp(prefix+".arrival", l.Arrival)
		}
	default:
		c.add("kind", fmt.Sprintf("unknown kind %q", e.Kind))
	}

	if err := c.result(); err != nil {
		return Expectation{}, err
	}
	return e, nil
}

func validateSeed(c *issueCollector, seed *SeedEmail) {
	if seed == nil {
		c.add("seed_email", "is required")
		return
	}
	c.required("seed.from", strings.TrimSpace(seed.From))
	c.timestamp("seed.timestamp", seed.Timestamp)
}

func uniqueName(c *issueCollector, seen map[string]struct{}, field, name, key string) {
	if name == "" {
		return
	}
	if _, ok := seen[key]; ok {
		c.add(field, fmt.Sprintf("duplicate name %q", name))
		return
	}
	seen[key] = struct{}{}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
