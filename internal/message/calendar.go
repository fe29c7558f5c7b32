package message

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-ical"

	"github.com/mkmk6794/timepick/internal/domain"
)

const (
	productID       = "-//TimePick//Schedule Confirmation//KO"
	floatingLayout  = "20060102T150405"
	calendarUIDHost = "timepick"
)

// Calendar renders the confirmed slot of ev as an iCalendar document.
// Start and end are written as floating local times because TimePick never
// knows the organizer's zone. DTSTAMP comes from the confirmation time so
// the output stays reproducible.
func Calendar(ev *domain.Event) ([]byte, error) {
	if !ev.IsConfirmed() {
		return nil, domain.ErrNotConfirmed
	}

	start, end, err := slotBounds(*ev.ConfirmedDate)
	if err != nil {
		return nil, err
	}

	stamp := ev.CreatedAt
	if ev.ConfirmedAt != nil {
		stamp = *ev.ConfirmedAt
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText(ical.PropMethod, "PUBLISH")

	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, ev.ID+"@"+calendarUIDHost)
	ve.Props.Set(dateTimeProp(ical.PropDateTimeStamp, stamp.UTC().Format(floatingLayout)+"Z"))
	ve.Props.Set(dateTimeProp(ical.PropDateTimeStart, start.Format(floatingLayout)))
	ve.Props.Set(dateTimeProp(ical.PropDateTimeEnd, end.Format(floatingLayout)))
	ve.Props.SetText(ical.PropSummary, ev.Title)

	description := ev.Description
	if ev.ConfirmationMessage != "" {
		if description != "" {
			description += "\n\n"
		}
		description += ev.ConfirmationMessage
	}
	if description != "" {
		ve.Props.SetText(ical.PropDescription, description)
	}

	if ev.OrganizerEmail != "" {
		org := ical.NewProp(ical.PropOrganizer)
		org.Value = "mailto:" + ev.OrganizerEmail
		if ev.OrganizerName != "" {
			org.Params.Set(ical.ParamCommonName, ev.OrganizerName)
		}
		ve.Props.Set(org)
	}

	ve.Props.SetText(ical.PropStatus, "CONFIRMED")
	cal.Children = append(cal.Children, ve)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encoding calendar for event %s: %w", ev.ID, err)
	}
	return buf.Bytes(), nil
}

// slotBounds parses a proposed date into wall-clock bounds. An end time at
// or before the start time is taken to mean the next day.
func slotBounds(d domain.ProposedDate) (time.Time, time.Time, error) {
	start, err := time.Parse(domain.DateLayout+" "+domain.TimeLayout, d.Date+" "+d.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start of %s: %v", domain.ErrInvalidInput, d.ID, err)
	}
	end, err := time.Parse(domain.DateLayout+" "+domain.TimeLayout, d.Date+" "+d.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end of %s: %v", domain.ErrInvalidInput, d.ID, err)
	}
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, nil
}

func dateTimeProp(name, value string) *ical.Prop {
	p := ical.NewProp(name)
	p.Value = value
	return p
}
