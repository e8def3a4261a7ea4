package scenario

import (
	"encoding/json"

	"pabench/internal/domain"
)

// Kind selects the built-in check set that scores a scenario.
type Kind string

const (
	KindScheduling        Kind = "scheduling"
	KindRescheduling      Kind = "rescheduling"
	KindCancellation      Kind = "cancellation"
	KindReplyAll          Kind = "reply_all"
	KindConflictDetection Kind = "conflict_detection"
	KindTravel            Kind = "travel"
)

// Expectation is the hand-authored ground truth for one scenario, read from
// verifier.yml next to the scenario data.
type Expectation struct {
	Kind Kind `yaml:"kind" json:"kind"`
	// Self is the acting user's address, excluded from participant sets.
	Self string `yaml:"self,omitempty" json:"self,omitempty"`

	// SeedEmail references an email in the scenario's seed mailbox.
	SeedEmail string     `yaml:"seed_email,omitempty" json:"seed_email,omitempty"`
	Seed      *SeedEmail `yaml:"seed,omitempty" json:"seed,omitempty"`

	Title          string   `yaml:"title,omitempty" json:"title,omitempty"`
	TitleMatch     string   `yaml:"title_match,omitempty" json:"title_match,omitempty"`
	WindowDays     int      `yaml:"window_days,omitempty" json:"window_days,omitempty"`
	Location       string   `yaml:"location,omitempty" json:"location,omitempty"`
	ExtraGuests    []string `yaml:"extra_guests,omitempty" json:"extra_guests,omitempty"`
	CheckConflicts *bool    `yaml:"check_conflicts,omitempty" json:"check_conflicts,omitempty"`

	EventID    string   `yaml:"event_id,omitempty" json:"event_id,omitempty"`
	TargetDate string   `yaml:"target_date,omitempty" json:"target_date,omitempty"`
	Keywords   []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`

	ThreadID   string   `yaml:"thread_id,omitempty" json:"thread_id,omitempty"`
	Organizer  string   `yaml:"organizer,omitempty" json:"organizer,omitempty"`
	OriginalCC []string `yaml:"original_cc,omitempty" json:"original_cc,omitempty"`

	Meetings []Meeting `yaml:"meetings,omitempty" json:"meetings,omitempty"`
	Stale    []Slot    `yaml:"stale,omitempty" json:"stale,omitempty"`
	Legs     []Leg     `yaml:"legs,omitempty" json:"legs,omitempty"`

	// Tolerance overrides the fuzzy time comparison, in seconds.
	ToleranceSeconds int `yaml:"tolerance_seconds,omitempty" json:"tolerance_seconds,omitempty"`
}

// SeedEmail carries the header fields of the email that triggered a task.
type SeedEmail struct {
	ID        string   `yaml:"id,omitempty" json:"id,omitempty"`
	ThreadID  string   `yaml:"thread_id,omitempty" json:"thread_id,omitempty"`
	From      string   `yaml:"from" json:"from"`
	To        []string `yaml:"to,omitempty" json:"to,omitempty"`
	CC        []string `yaml:"cc,omitempty" json:"cc,omitempty"`
	Timestamp string   `yaml:"timestamp" json:"timestamp"`
}

func (s SeedEmail) Email() domain.Email {
	m := domain.Email{ID: s.ID, ThreadID: s.ThreadID, From: domain.Address{Email: s.From}, Timestamp: s.Timestamp}
	for _, to := range s.To {
		m.To = append(m.To, domain.Address{Email: to})
	}
	for _, cc := range s.CC {
		m.CC = append(m.CC, domain.Address{Email: cc})
	}
	return m
}

func seedFromEmail(m domain.Email) *SeedEmail {
	return &SeedEmail{
		ID:        m.ID,
		ThreadID:  m.ThreadID,
		From:      m.From.Email,
		To:        domain.Emails(m.To),
		CC:        domain.Emails(m.CC),
		Timestamp: m.Timestamp,
	}
}

// Meeting is an event expected at a fixed time.
type Meeting struct {
	Name          string   `yaml:"name" json:"name"`
	TitleContains string   `yaml:"title_contains,omitempty" json:"title_contains,omitempty"`
	Start         string   `yaml:"start" json:"start"`
	End           string   `yaml:"end,omitempty" json:"end,omitempty"`
	Organizer     string   `yaml:"organizer,omitempty" json:"organizer,omitempty"`
	Participants  []string `yaml:"participants,omitempty" json:"participants,omitempty"`
	Excluded      []string `yaml:"excluded,omitempty" json:"excluded,omitempty"`
}

// Slot is a time an event must no longer occupy.
type Slot struct {
	Name          string `yaml:"name" json:"name"`
	TitleContains string `yaml:"title_contains" json:"title_contains"`
	Start         string `yaml:"start" json:"start"`
}

// Leg is one flight that a calendar block has to cover.
type Leg struct {
	Name         string `yaml:"name" json:"name"`
	Departure    string `yaml:"departure" json:"departure"`
	Arrival      string `yaml:"arrival" json:"arrival"`
	FlightNumber string `yaml:"flight_number" json:"flight_number"`
}

func (e Expectation) ConflictsChecked() bool {
	return e.CheckConflicts == nil || *e.CheckConflicts
}

// Task is the agent-facing description from task.json.
type Task struct {
	Description string `json:"description"`
	Today       string `json:"today,omitempty"`
}

// Scenario is a loaded scenario directory.
type Scenario struct {
	ID          string          `json:"id"`
	Path        string          `json:"path"`
	Description string          `json:"description"`
	Today       string          `json:"today,omitempty"`
	Expect      Expectation     `json:"expect"`
	Mailbox     json.RawMessage `json:"-"`
	Calendar    json.RawMessage `json:"-"`
}
