package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"

	"pabench/internal/domain"
)

const (
	DefaultMailboxKey  = "gmail-clone"
	DefaultCalendarKey = "calendar-clone"
)

var (
	ErrMissingService = errors.New("service state missing")
	// ErrMalformed marks a state document that is not valid JSON of the
	// expected shape.
	ErrMalformed = errors.New("malformed state")
)

// Keys names the top-level entries holding each service's state.
type Keys struct {
	Mailbox  string `yaml:"mailbox_key" json:"mailbox_key"`
	Calendar string `yaml:"calendar_key" json:"calendar_key"`
}

func DefaultKeys() Keys {
	return Keys{Mailbox: DefaultMailboxKey, Calendar: DefaultCalendarKey}
}

func (k Keys) withDefaults() Keys {
	if k.Mailbox == "" {
		k.Mailbox = DefaultMailboxKey
	}
	if k.Calendar == "" {
		k.Calendar = DefaultCalendarKey
	}
	return k
}

// State is the read-only view of both services that checks run against.
type State struct {
	Emails           []domain.Email
	Events           []domain.Event
	OtherUsersEvents map[string][]domain.Event
	// Skipped counts records dropped because they could not be decoded.
	Skipped int
}

type mailboxDoc struct {
	Emails []json.RawMessage `json:"emails"`
}

type calendarDoc struct {
	Events           []json.RawMessage            `json:"events"`
	OtherUsersEvents map[string][]json.RawMessage `json:"otherUsersEvents"`
}

// Decode reads a combined snapshot object keyed by service name.
func Decode(data []byte, keys Keys) (State, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return State{}, fmt.Errorf("%w: decode snapshot: %w", ErrMalformed, err)
	}
	return FromMap(raw, keys)
}

// FromMap picks the two service states out of an already split snapshot.
func FromMap(raw map[string]json.RawMessage, keys Keys) (State, error) {
	keys = keys.withDefaults()
	mailbox, ok := raw[keys.Mailbox]
	if !ok || isNull(mailbox) {
		return State{}, fmt.Errorf("%w: %q", ErrMissingService, keys.Mailbox)
	}
	calendar, ok := raw[keys.Calendar]
	if !ok || isNull(calendar) {
		return State{}, fmt.Errorf("%w: %q", ErrMissingService, keys.Calendar)
	}
	return FromParts(mailbox, calendar)
}

// FromParts decodes the mailbox and calendar documents. Individual emails
// or events that do not decode are skipped and counted.
func FromParts(mailbox, calendar []byte) (State, error) {
	var mb mailboxDoc
	if err := json.Unmarshal(mailbox, &mb); err != nil {
		return State{}, fmt.Errorf("%w: decode mailbox state: %w", ErrMalformed, err)
	}
	var cal calendarDoc
	if err := json.Unmarshal(calendar, &cal); err != nil {
		return State{}, fmt.Errorf("%w: decode calendar state: %w", ErrMalformed, err)
	}
	st := State{OtherUsersEvents: map[string][]domain.Event{}}
	for _, item := range mb.Emails {
		var m domain.Email
		if err := json.Unmarshal(item, &m); err != nil {
			st.Skipped++
			continue
		}
		st.Emails = append(st.Emails, m)
	}
	st.Events, st.Skipped = decodeEvents(cal.Events, st.Skipped)
	for email, items := range cal.OtherUsersEvents {
		var evs []domain.Event
		evs, st.Skipped = decodeEvents(items, st.Skipped)
		st.OtherUsersEvents[email] = evs
	}
	return st, nil
}

func decodeEvents(items []json.RawMessage, skipped int) ([]domain.Event, int) {
	out := make([]domain.Event, 0, len(items))
	for _, item := range items {
		var ev domain.Event
		if err := json.Unmarshal(item, &ev); err != nil {
			skipped++
			continue
		}
		out = append(out, ev)
	}
	return out, skipped
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// Encode writes st back into the combined snapshot layout.
func Encode(st State, keys Keys) ([]byte, error) {
	keys = keys.withDefaults()
	emails := st.Emails
	if emails == nil {
		emails = []domain.Email{}
	}
	events := st.Events
	if events == nil {
		events = []domain.Event{}
	}
	others := st.OtherUsersEvents
	if others == nil {
		others = map[string][]domain.Event{}
	}
	doc := map[string]any{
		keys.Mailbox:  map[string]any{"emails": emails},
		keys.Calendar: map[string]any{"events": events, "otherUsersEvents": others},
	}
	return json.MarshalIndent(doc, "", "  ")
}
