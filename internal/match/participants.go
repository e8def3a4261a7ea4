package match

import (
	"strings"

	"pabench/internal/domain"
)

// NormalizeEmail lower-cases and trims an address for set comparison.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

type emailSet map[string]struct{}

func newEmailSet(emails []string) emailSet {
	s := make(emailSet, len(emails))
	for _, e := range emails {
		if n := NormalizeEmail(e); n != "" {
			s[n] = struct{}{}
		}
	}
	return s
}

func (s emailSet) has(e string) bool {
	_, ok := s[NormalizeEmail(e)]
	return ok
}

// Required returns the participants a meeting requested by seed must
// include: the sender, everyone on CC and any extra guests, without self.
// Order is preserved and duplicates are dropped.
func Required(seed domain.Email, extra []string, self string) []string {
	all := make([]string, 0, 1+len(seed.CC)+len(extra))
	all = append(all, seed.From.Email)
	all = append(all, domain.Emails(seed.CC)...)
	all = append(all, extra...)
	return Unique(all, self)
}

// Unique normalizes emails, drops blanks, duplicates and any of exclude.
func Unique(emails []string, exclude ...string) []string {
	skip := newEmailSet(exclude)
	seen := emailSet{}
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		n := NormalizeEmail(e)
		if n == "" || skip.has(n) || seen.has(n) {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Present returns the attendee addresses of an event.
func Present(attendees []domain.Attendee) []string {
	out := make([]string, 0, len(attendees))
	for _, a := range attendees {
		out = append(out, a.Email)
	}
	return Unique(out)
}

// Covers reports whether every required address is present, and which ones
// are not, in required order.
func Covers(required, present []string) (bool, []string) {
	have := newEmailSet(present)
	var missing []string
	for _, r := range Unique(required) {
		if !have.has(r) {
			missing = append(missing, r)
		}
	}
	return len(missing) == 0, missing
}

// Contains reports whether addr is one of emails.
func Contains(emails []string, addr string) bool {
	return newEmailSet(emails).has(addr)
}

// ReplyAllOutcome describes how a single reply treats the original
// recipients of a thread.
type ReplyAllOutcome struct {
	OrganizerInTo bool
	CCPreserved   bool
	MissingCC     []string
}

func (o ReplyAllOutcome) Verified() bool {
	return o.OrganizerInTo && o.CCPreserved
}

// ReplyAll checks that reply addresses the organizer directly and keeps
// every original CC recipient other than self.
func ReplyAll(reply domain.Email, organizer string, originalCC []string, self string) ReplyAllOutcome {
	ok, missing := Covers(Unique(originalCC, self), domain.Emails(reply.CC))
	return ReplyAllOutcome{
		OrganizerInTo: Contains(domain.Emails(reply.To), organizer),
		CCPreserved:   ok,
		MissingCC:     missing,
	}
}
