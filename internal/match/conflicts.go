package match

import (
	"sort"
	"time"

	"pabench/internal/domain"
	"pabench/internal/instant"
)

// Availability maps each participant to whether their calendar is free
// during a target event.
type Availability map[string]bool

// Unavailable lists the busy participants, sorted.
func (a Availability) Unavailable() []string {
	var out []string
	for email, free := range a {
		if !free {
			out = append(out, email)
		}
	}
	sort.Strings(out)
	return out
}

func (a Availability) AllAvailable() bool {
	for _, free := range a {
		if !free {
			return false
		}
	}
	return true
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// Conflicts computes per-participant availability for target against the
// other calendars. Events sharing the target's id are the target itself and
// never conflict. Events with unparsable times are ignored, as is a target
// whose own times cannot be parsed.
func Conflicts(target domain.Event, participants []string, others map[string][]domain.Event) Availability {
	avail := make(Availability, len(participants))
	for _, p := range Unique(participants) {
		avail[p] = true
	}
	start, errS := instant.Parse(target.Start)
	end, errE := instant.Parse(target.End)
	if errS != nil || errE != nil {
		return avail
	}
	byEmail := make(map[string][]domain.Event, len(others))
	for email, evs := range others {
		n := NormalizeEmail(email)
		byEmail[n] = append(byEmail[n], evs...)
	}
	for p := range avail {
		for _, other := range byEmail[p] {
			if other.ID == target.ID {
				continue
			}
			oStart, err := instant.Parse(other.Start)
			if err != nil {
				continue
			}
			oEnd, err := instant.Parse(other.End)
			if err != nil {
				continue
			}
			if Overlaps(start, end, oStart, oEnd) {
				avail[p] = false
				break
			}
		}
	}
	return avail
}
