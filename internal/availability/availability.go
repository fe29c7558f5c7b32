// Package availability turns raw participant responses into per-date and
// per-event statistics. Everything here is a pure function of its inputs
// and is recomputed on every read.
package availability

import (
	"sort"

	"github.com/mkmk6794/timepick/internal/domain"
)

type DateAvailability struct {
	domain.ProposedDate
	AvailableCount        int      `json:"availableCount"`
	AvailableParticipants []string `json:"availableParticipants"`
	Percentage            int      `json:"percentage"`
}

type ParticipantStatus struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Email         string   `json:"email"`
	HasResponded  bool     `json:"hasResponded"`
	SelectedDates []string `json:"selectedDates"`
}

type Summary struct {
	ByDate         []DateAvailability  `json:"availabilityByDate"`
	Participants   []ParticipantStatus `json:"participants"`
	TotalResponses int                 `json:"totalResponses"`
	ResponseRate   int                 `json:"responseRate"`
}

// Summarize computes availability for every proposed date of ev, in the
// event's proposed order. Available participants are listed in the event's
// participant order. Responses belonging to other events or to unknown
// participants are ignored.
func Summarize(ev *domain.Event, responses []domain.Response) Summary {
	byParticipant := make(map[string]*domain.Response, len(responses))
	for i := range responses {
		r := &responses[i]
		if r.EventID != ev.ID {
			continue
		}
		// Later entries win, mirroring last-write-wins in the store.
		byParticipant[r.ParticipantID] = r
	}

	total := len(ev.Participants)

	s := Summary{
		ByDate:       make([]DateAvailability, 0, len(ev.ProposedDates)),
		Participants: make([]ParticipantStatus, 0, total),
	}

	for _, p := range ev.Participants {
		st := ParticipantStatus{ID: p.ID, Name: p.Name, Email: p.Email, SelectedDates: []string{}}
		if r, ok := byParticipant[p.ID]; ok {
			st.HasResponded = true
			st.SelectedDates = append(st.SelectedDates, r.SelectedDates...)
			s.TotalResponses++
		}
		s.Participants = append(s.Participants, st)
	}

	for _, d := range ev.ProposedDates {
		da := DateAvailability{ProposedDate: d, AvailableParticipants: []string{}}
		for _, p := range ev.Participants {
			r, ok := byParticipant[p.ID]
			if ok && r.Includes(d.ID) {
				da.AvailableParticipants = append(da.AvailableParticipants, p.Name)
			}
		}
		da.AvailableCount = len(da.AvailableParticipants)
		da.Percentage = Percent(da.AvailableCount, total)
		s.ByDate = append(s.ByDate, da)
	}

	s.ResponseRate = Percent(s.TotalResponses, total)
	return s
}

// Ranked returns a copy of dates ordered by AvailableCount, highest first.
// Ties keep their proposed order.
func Ranked(dates []DateAvailability) []DateAvailability {
	out := append([]DateAvailability(nil), dates...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AvailableCount > out[j].AvailableCount
	})
	return out
}

// Best returns the top ranked date, or false when no date has any
// availability.
func Best(dates []DateAvailability) (DateAvailability, bool) {
	ranked := Ranked(dates)
	if len(ranked) == 0 || ranked[0].AvailableCount == 0 {
		return DateAvailability{}, false
	}
	return ranked[0], true
}

// Percent returns round(100*n/total) with halves rounded up, and 0 when
// total is not positive.
func Percent(n, total int) int {
	if total <= 0 || n <= 0 {
		return 0
	}
	return (200*n + total) / (2 * total)
}
