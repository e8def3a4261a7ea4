package verify

import (
	"fmt"
	"strings"

	"pabench/internal/match"
	"pabench/internal/scenario"
	"pabench/internal/score"
	"pabench/internal/snapshot"
)

const (
	CheckEventRemoved        = "event_removed_check"
	CheckEmailsSent          = "emails_sent_check"
	CheckCancellationKeyword = "cancellation_keyword_check"
)

// cancellation expects the event to be gone and a cancellation notice to
// have been sent on the target date.
func cancellation(card *score.Card, exp scenario.Expectation, st snapshot.State) error {
	target, err := parseField("target_date", exp.TargetDate)
	if err != nil {
		return err
	}
	exists := match.EventExists(st.Events, exp.EventID)
	card.Record(CheckEventRemoved, !exists,
		"Event successfully removed from calendar",
		"Event still exists in calendar - cancellation not processed")

	sent := match.FilterEmails(st.Emails, match.EmailQuery{Label: match.LabelSent, On: target})
	card.Record(CheckEmailsSent, len(sent) > 0,
		fmt.Sprintf("Found %d email(s) sent on target date %s", len(sent), day(target)),
		fmt.Sprintf("No emails sent on the target date %s", day(target)))

	card.Gated(CheckCancellationKeyword, len(sent) > 0, "Cannot check cancellation keywords - no emails sent on target date", func() (bool, string) {
		notice := match.EmailQuery{Label: match.LabelSent, On: target, Keywords: exp.Keywords}
		if _, ok := match.FindEmail(st.Emails, notice); ok {
			return true, "Cancellation email found"
		}
		return false, "No sent email mentions " + strings.Join(exp.Keywords, "/")
	})
	return nil
}
