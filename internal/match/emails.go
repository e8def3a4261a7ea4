package match

import (
	"strings"
	"time"

	"pabench/internal/domain"
	"pabench/internal/instant"
)

const LabelSent = "SENT"

// EmailQuery selects emails. Zero-valued fields do not constrain.
type EmailQuery struct {
	ThreadID string
	From     string
	Label    string
	// On keeps emails whose timestamp falls on the same UTC date.
	On time.Time
	// Keywords keeps emails mentioning at least one keyword.
	Keywords []string
}

func (q EmailQuery) Matches(m domain.Email) bool {
	if q.ThreadID != "" && m.ThreadID != q.ThreadID {
		return false
	}
	if q.From != "" && NormalizeEmail(m.From.Email) != NormalizeEmail(q.From) {
		return false
	}
	if q.Label != "" && !m.HasLabel(q.Label) {
		return false
	}
	if !q.On.IsZero() {
		ts, err := instant.Parse(m.Timestamp)
		if err != nil || !instant.SameDate(ts, q.On) {
			return false
		}
	}
	if len(q.Keywords) > 0 && !MentionsAny(m, q.Keywords) {
		return false
	}
	return true
}

// FilterEmails returns matching emails in snapshot order.
func FilterEmails(emails []domain.Email, q EmailQuery) []domain.Email {
	var out []domain.Email
	for _, m := range emails {
		if q.Matches(m) {
			out = append(out, m)
		}
	}
	return out
}

// FindEmail returns the first matching email.
func FindEmail(emails []domain.Email, q EmailQuery) (domain.Email, bool) {
	for _, m := range emails {
		if q.Matches(m) {
			return m, true
		}
	}
	return domain.Email{}, false
}

// FindEmailByID looks up an email by id.
func FindEmailByID(emails []domain.Email, id string) (domain.Email, bool) {
	for _, m := range emails {
		if m.ID == id {
			return m, true
		}
	}
	return domain.Email{}, false
}

// MentionsAny reports whether the subject or body contains any keyword,
// ignoring case.
func MentionsAny(m domain.Email, keywords []string) bool {
	text := m.Text()
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(text, k) {
			return true
		}
	}
	return false
}
