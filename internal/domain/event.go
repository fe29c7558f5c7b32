package domain

import "time"

type EventStatus string

const (
	StatusPending   EventStatus = "pending"
	StatusConfirmed EventStatus = "confirmed"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Event is one scheduling campaign. It owns its proposed dates and
// participants; responses are stored separately and reference it by ID.
type Event struct {
	ID                  string         `json:"id"`
	OrganizerToken      string         `json:"organizerToken"`
	Title               string         `json:"title"`
	Description         string         `json:"description"`
	OrganizerName       string         `json:"organizerName"`
	OrganizerEmail      string         `json:"organizerEmail"`
	ProposedDates       []ProposedDate `json:"proposedDates"`
	Participants        []Participant  `json:"participants"`
	Status              EventStatus    `json:"status"`
	ConfirmedDate       *ProposedDate  `json:"confirmedDate"`
	ConfirmationMessage string         `json:"confirmationMessage,omitempty"`
	CreatedAt           time.Time      `json:"createdAt"`
	ConfirmedAt         *time.Time     `json:"confirmedAt,omitempty"`
}

type ProposedDate struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type Participant struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	ResponseToken string `json:"responseToken"`
}

// Response is one participant's declared availability. At most one live
// Response exists per (EventID, ParticipantID).
type Response struct {
	ID            string    `json:"id"`
	EventID       string    `json:"eventId"`
	ParticipantID string    `json:"participantId"`
	SelectedDates []string  `json:"selectedDates"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// Snapshot is the whole persisted state. Its JSON form matches the legacy
// data.json file of the first TimePick server.
type Snapshot struct {
	Events    []Event    `json:"events"`
	Responses []Response `json:"responses"`
}

func (e *Event) IsConfirmed() bool {
	return e.Status == StatusConfirmed && e.ConfirmedDate != nil
}

func (e *Event) ProposedDate(id string) (ProposedDate, bool) {
	for _, d := range e.ProposedDates {
		if d.ID == id {
			return d, true
		}
	}
	return ProposedDate{}, false
}

func (e *Event) Participant(id string) (Participant, bool) {
	for _, p := range e.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

func (e *Event) ParticipantByToken(token string) (Participant, bool) {
	for _, p := range e.Participants {
		if p.ResponseToken == token {
			return p, true
		}
	}
	return Participant{}, false
}

// Clone returns a deep copy so callers can mutate it without touching the
// stored slices.
func (e *Event) Clone() *Event {
	c := *e
	c.ProposedDates = append([]ProposedDate(nil), e.ProposedDates...)
	c.Participants = append([]Participant(nil), e.Participants...)
	if e.ConfirmedDate != nil {
		d := *e.ConfirmedDate
		c.ConfirmedDate = &d
	}
	if e.ConfirmedAt != nil {
		t := *e.ConfirmedAt
		c.ConfirmedAt = &t
	}
	return &c
}

// Includes reports whether the response marks the given proposed date as available.
func (r *Response) Includes(dateID string) bool {
	for _, id := range r.SelectedDates {
		if id == dateID {
			return true
		}
	}
	return false
}
