package domain

import "strings"

type ResponseStatus string

const (
	ResponseNeedsAction ResponseStatus = "needsAction"
	ResponseAccepted    ResponseStatus = "accepted"
	ResponseDeclined    ResponseStatus = "declined"
	ResponseTentative   ResponseStatus = "tentative"
)

type Attendee struct {
	Email          string         `json:"email"`
	Name           string         `json:"name,omitempty"`
	IsOrganizer    bool           `json:"isOrganizer,omitempty"`
	ResponseStatus ResponseStatus `json:"responseStatus,omitempty"`
}

type ConferenceSolution struct {
	Name string `json:"name"`
}

type ConferenceData struct {
	ConferenceSolution ConferenceSolution `json:"conferenceSolution"`
}

// Event is a calendar entry as reported by the calendar service. Start and
// End keep the service's raw timestamp strings.
type Event struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Start          string          `json:"start"`
	End            string          `json:"end"`
	Location       string          `json:"location,omitempty"`
	Attendees      []Attendee      `json:"attendees,omitempty"`
	ConferenceData *ConferenceData `json:"conferenceData,omitempty"`
	Status         string          `json:"status,omitempty"`
}

// ConferenceName returns the conference solution name or "".
func (e Event) ConferenceName() string {
	if e.ConferenceData == nil {
		return ""
	}
	return e.ConferenceData.ConferenceSolution.Name
}

// Organizer returns the first attendee flagged as organizer.
func (e Event) Organizer() (Attendee, bool) {
	for _, a := range e.Attendees {
		if a.IsOrganizer {
			return a, true
		}
	}
	return Attendee{}, false
}

type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type Email struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"threadId"`
	From      Address   `json:"from"`
	To        []Address `json:"to,omitempty"`
	CC        []Address `json:"cc,omitempty"`
	BCC       []Address `json:"bcc,omitempty"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Timestamp string    `json:"timestamp"`
	Labels    []string  `json:"labels,omitempty"`
}

func (m Email) HasLabel(label string) bool {
	for _, l := range m.Labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

// Text is the lower-cased subject and body used for keyword search.
func (m Email) Text() string {
	return strings.ToLower(m.Subject + " " + m.Body)
}

func Emails(addrs []Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Email)
	}
	return out
}

type Check struct {
	Name    string `json:"name"`
	Verdict bool   `json:"verdict"`
	Reason  string `json:"reason"`
}

type VerificationResult struct {
	Reward  float64 `json:"reward"`
	Passed  bool    `json:"passed"`
	Message string  `json:"message"`
	Checks  []Check `json:"checks"`
}

// Where the verified state came from.
const (
	SourceLive    = "live"
	SourceSeed    = "seed"
	SourceFile    = "file"
	SourceRequest = "request"
)

type Run struct {
	ID         string  `json:"id"`
	ScenarioID string  `json:"scenario_id"`
	Kind       string  `json:"kind"`
	Source     string  `json:"source" enum:"live,seed,file,request"`
	Reward     float64 `json:"reward"`
	Passed     bool    `json:"passed"`
	Message    string  `json:"message"`
	Checks     []Check `json:"checks"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

func (r Run) Result() VerificationResult {
	return VerificationResult{Reward: r.Reward, Passed: r.Passed, Message: r.Message, Checks: r.Checks}
}

type LogEvent struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ScenarioID string `json:"scenario_id,omitempty"`
	Payload    string `json:"payload_json"`
}
