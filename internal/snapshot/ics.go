package snapshot

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"pabench/internal/domain"
	"pabench/internal/instant"
)

const (
	productID      = "-//pabench//calendar snapshot//EN"
	propConference = "X-CONFERENCE-NAME"
	paramPartStat  = "PARTSTAT"
	mailtoPrefix   = "mailto:"
	rfc3339UTC     = "2006-01-02T15:04:05Z"
)

var partStats = map[domain.ResponseStatus]string{
	domain.ResponseNeedsAction: "NEEDS-ACTION",
	domain.ResponseAccepted:    "ACCEPTED",
	domain.ResponseDeclined:    "DECLINED",
	domain.ResponseTentative:   "TENTATIVE",
}

// EncodeICS writes events as a VCALENDAR. Events whose times cannot be
// parsed are left out; the number written is returned.
func EncodeICS(w io.Writer, events []domain.Event, stamp time.Time) (int, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	written := 0
	for _, ev := range events {
		start, err := instant.Parse(ev.Start)
		if err != nil {
			continue
		}
		end, err := instant.Parse(ev.End)
		if err != nil {
			continue
		}
		vevent := ical.NewEvent()
		vevent.Props.SetText(ical.PropUID, ev.ID)
		vevent.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
		vevent.Props.SetDateTime(ical.PropDateTimeStart, start)
		vevent.Props.SetDateTime(ical.PropDateTimeEnd, end)
		vevent.Props.SetText(ical.PropSummary, ev.Title)
		if ev.Description != "" {
			vevent.Props.SetText(ical.PropDescription, ev.Description)
		}
		if ev.Location != "" {
			vevent.Props.SetText(ical.PropLocation, ev.Location)
		}
		if name := ev.ConferenceName(); name != "" {
			vevent.Props.SetText(propConference, name)
		}
		if ev.Status != "" {
			vevent.Props.SetText(ical.PropStatus, strings.ToUpper(ev.Status))
		}
		for _, a := range ev.Attendees {
			prop := ical.NewProp(ical.PropAttendee)
			prop.Value = mailtoPrefix + a.Email
			if a.Name != "" {
				prop.Params.Set(ical.ParamCommonName, a.Name)
			}
			if ps, ok := partStats[a.ResponseStatus]; ok {
				prop.Params.Set(paramPartStat, ps)
			}
			vevent.Props.Add(prop)
			if a.IsOrganizer {
				org := ical.NewProp(ical.PropOrganizer)
				org.Value = mailtoPrefix + a.Email
				vevent.Props.Set(org)
			}
		}
		cal.Children = append(cal.Children, vevent.Component)
		written++
	}
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return 0, fmt.Errorf("encode ics: %w", err)
	}
	return written, nil
}

// DecodeICS reads every VEVENT from r. Start and end are stored as UTC
// RFC 3339 strings.
func DecodeICS(r io.Reader) ([]domain.Event, error) {
	dec := ical.NewDecoder(r)
	var events []domain.Event
	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode ics: %w", err)
		}
		for _, comp := range cal.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			events = append(events, parseVEvent(comp))
		}
	}
	return events, nil
}

func parseVEvent(comp *ical.Component) domain.Event {
	ev := domain.Event{}
	if p := comp.Props.Get(ical.PropUID); p != nil {
		ev.ID = p.Value
	}
	if p := comp.Props.Get(ical.PropSummary); p != nil {
		ev.Title = p.Value
	}
	if p := comp.Props.Get(ical.PropDescription); p != nil {
		ev.Description = p.Value
	}
	if p := comp.Props.Get(ical.PropLocation); p != nil {
		ev.Location = p.Value
	}
	if p := comp.Props.Get(ical.PropStatus); p != nil {
		ev.Status = strings.ToLower(p.Value)
	}
	if p := comp.Props.Get(propConference); p != nil && p.Value != "" {
		ev.ConferenceData = &domain.ConferenceData{ConferenceSolution: domain.ConferenceSolution{Name: p.Value}}
	}
	if p := comp.Props.Get(ical.PropDateTimeStart); p != nil {
		if t, err := p.DateTime(time.UTC); err == nil {
			ev.Start = t.UTC().Format(rfc3339UTC)
		}
	}
	if p := comp.Props.Get(ical.PropDateTimeEnd); p != nil {
		if t, err := p.DateTime(time.UTC); err == nil {
			ev.End = t.UTC().Format(rfc3339UTC)
		}
	}
	organizer := ""
	if p := comp.Props.Get(ical.PropOrganizer); p != nil {
		organizer = trimMailto(p.Value)
	}
	for _, p := range comp.Props.Values(ical.PropAttendee) {
		a := domain.Attendee{
			Email: trimMailto(p.Value),
			Name:  p.Params.Get(ical.ParamCommonName),
		}
		for status, ps := range partStats {
			if strings.EqualFold(p.Params.Get(paramPartStat), ps) {
				a.ResponseStatus = status
			}
		}
		if organizer != "" && strings.EqualFold(a.Email, organizer) {
			a.IsOrganizer = true
			organizer = ""
		}
		ev.Attendees = append(ev.Attendees, a)
	}
	if organizer != "" {
		ev.Attendees = append(ev.Attendees, domain.Attendee{Email: organizer, IsOrganizer: true})
	}
	return ev
}

func trimMailto(v string) string {
	if len(v) >= len(mailtoPrefix) && strings.EqualFold(v[:len(mailtoPrefix)], mailtoPrefix) {
		return v[len(mailtoPrefix):]
	}
	return v
}
