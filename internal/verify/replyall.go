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
	CheckUserReply          = "user_reply_check"
	CheckOrganizerRecipient = "organizer_recipient_check"
	CheckCCRecipients       = "cc_recipients_check"
	CheckReplyAll           = "reply_all_check"
)

// replyAll expects the user to answer the thread addressing the organizer
// and keeping every original CC recipient.
func replyAll(card *score.Card, exp scenario.Expectation, st snapshot.State) error {
	originalCC := exp.OriginalCC
	if len(originalCC) == 0 && exp.Seed != nil {
		originalCC = exp.Seed.CC
	}
	replies := match.FilterEmails(st.Emails, match.EmailQuery{
		ThreadID: exp.ThreadID,
		From:     exp.Self,
		Label:    match.LabelSent,
	})
	// The first reply that satisfies both conditions wins; otherwise the
	// last reply examined decides the individual checks.
	var outcome match.ReplyAllOutcome
	for _, reply := range replies {
		outcome = match.ReplyAll(reply, exp.Organizer, originalCC, exp.Self)
		if outcome.Verified() {
			break
		}
	}
	found := len(replies) > 0

	card.Record(CheckUserReply, found,
		"Reply email found from user in the thread",
		"No reply email found from user in the thread")
	card.Gated(CheckOrganizerRecipient, found, "Cannot check recipients - no reply found", func() (bool, string) {
		if outcome.OrganizerInTo {
			return true, "Organizer included in 'to' field"
		}
		return false, fmt.Sprintf("Organizer %s not in 'to' field", exp.Organizer)
	})
	card.Gated(CheckCCRecipients, found, "Cannot check CC recipients - no reply found", func() (bool, string) {
		if outcome.CCPreserved {
			return true, "All original CC recipients preserved"
		}
		return false, "Not all original CC recipients included in reply: missing " + strings.Join(outcome.MissingCC, ", ")
	})
	card.Record(CheckReplyAll, found && outcome.Verified(),
		"Reply All used correctly",
		"Reply was not sent to all original recipients (Reply All not used)")
	return nil
}
