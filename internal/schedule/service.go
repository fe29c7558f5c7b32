// Package schedule holds the TimePick use cases: creating events, collecting
// responses and confirming a final slot. It owns no persistence and does no
// logging; both belong to the caller.
package schedule

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mkmk6794/timepick/internal/availability"
	"github.com/mkmk6794/timepick/internal/domain"
	"github.com/mkmk6794/timepick/internal/message"
	"github.com/mkmk6794/timepick/internal/token"
)

// Store is the persistence the service needs.
type Store interface {
	CreateEvent(ctx context.Context, ev *domain.Event) error
	GetEventByOrganizerToken(ctx context.Context, token string) (*domain.Event, error)
	GetEventByResponseToken(ctx context.Context, token string) (*domain.Event, string, error)
	UpdateEvent(ctx context.Context, id string, fn func(*domain.Event) error) (*domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
	ListResponses(ctx context.Context, eventID string) ([]domain.Response, error)
	GetResponse(ctx context.Context, eventID, participantID string) (*domain.Response, error)
	ReplaceResponse(ctx context.Context, r *domain.Response) error
}

type Service struct {
	store Store
	now   func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(s Store, opts ...Option) *Service {
	svc := &Service{store: s, now: time.Now}
	for _, o := range opts {
		o(svc)
	}
	return svc
}

type NewDate struct {
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type NewParticipant struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type NewEvent struct {
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	OrganizerName  string           `json:"organizerName"`
	OrganizerEmail string           `json:"organizerEmail"`
	ProposedDates  []NewDate        `json:"proposedDates"`
	Participants   []NewParticipant `json:"participants"`
}

// OrganizerView is everything the organizer dashboard shows.
type OrganizerView struct {
	Event   *domain.Event
	Summary availability.Summary
	// Ranked is Summary.ByDate ordered by availability, best first.
	Ranked []availability.DateAvailability
}

// PublicEvent is the part of an event a participant may see. Other
// participants and the organizer token are not part of it.
type PublicEvent struct {
	ID                  string                `json:"id"`
	Title               string                `json:"title"`
	Description         string                `json:"description"`
	OrganizerName       string                `json:"organizerName"`
	ProposedDates       []domain.ProposedDate `json:"proposedDates"`
	Status              domain.EventStatus    `json:"status"`
	ConfirmedDate       *domain.ProposedDate  `json:"confirmedDate"`
	ConfirmationMessage string                `json:"confirmationMessage,omitempty"`
}

type ParticipantView struct {
	Event       PublicEvent
	Participant domain.Participant
	// Selection is the participant's current answer, nil before the first
	// submission.
	Selection []string
}

type Confirmation struct {
	Event    *domain.Event
	Messages message.Confirmation
}

// EventOverview is one line of the operator overview.
type EventOverview struct {
	ID             string             `json:"id"`
	Title          string             `json:"title"`
	OrganizerName  string             `json:"organizerName"`
	Status         domain.EventStatus `json:"status"`
	Participants   int                `json:"participants"`
	TotalResponses int                `json:"totalResponses"`
	ResponseRate   int                `json:"responseRate"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// CreateEvent validates the input and stores a new pending event. Every id
// and token is freshly generated; calling it twice creates two events.
func (s *Service) CreateEvent(ctx context.Context, in NewEvent) (*domain.Event, error) {
	ev := &domain.Event{
		ID:             token.New(),
		OrganizerToken: token.New(),
		Title:          strings.TrimSpace(in.Title),
		Description:    strings.TrimSpace(in.Description),
		OrganizerName:  strings.TrimSpace(in.OrganizerName),
		OrganizerEmail: strings.TrimSpace(in.OrganizerEmail),
		Status:         domain.StatusPending,
		CreatedAt:      s.now().UTC(),
	}

	switch {
	case ev.Title == "":
		return nil, invalid("title is required")
	case ev.OrganizerName == "":
		return nil, invalid("organizerName is required")
	case ev.OrganizerEmail == "":
		return nil, invalid("organizerEmail is required")
	case len(in.ProposedDates) == 0:
		return nil, invalid("at least one proposed date is required")
	case len(in.Participants) == 0:
		return nil, invalid("at least one participant is required")
	}

	for i, d := range in.ProposedDates {
		pd := domain.ProposedDate{
			ID:        token.New(),
			Date:      strings.TrimSpace(d.Date),
			StartTime: strings.TrimSpace(d.StartTime),
			EndTime:   strings.TrimSpace(d.EndTime),
		}
		if err := validateDate(pd); err != nil {
			return nil, fmt.Errorf("proposedDates[%d]: %w", i, err)
		}
		ev.ProposedDates = append(ev.ProposedDates, pd)
	}

	for i, p := range in.Participants {
		part := domain.Participant{
			ID:            token.New(),
			Name:          strings.TrimSpace(p.Name),
			Email:         strings.TrimSpace(p.Email),
			ResponseToken: token.New(),
		}
		if part.Name == "" || part.Email == "" {
			return nil, fmt.Errorf("participants[%d]: %w", i, invalid("name and email are required"))
		}
		ev.Participants = append(ev.Participants, part)
	}

	if err := s.store.CreateEvent(ctx, ev); err != nil {
		return nil, storeErr("creating event", err)
	}
	return ev, nil
}

func (s *Service) GetEventForOrganizer(ctx context.Context, organizerToken string) (*OrganizerView, error) {
	if !token.Valid(organizerToken) {
		return nil, domain.ErrNotFound
	}
	ev, err := s.store.GetEventByOrganizerToken(ctx, organizerToken)
	if err != nil {
		return nil, storeErr("loading event", err)
	}
	if ev == nil {
		return nil, domain.ErrNotFound
	}

	responses, err := s.store.ListResponses(ctx, ev.ID)
	if err != nil {
		return nil, storeErr("loading responses", err)
	}

	sum := availability.Summarize(ev, responses)
	return &OrganizerView{
		Event:   ev,
		Summary: sum,
		Ranked:  availability.Ranked(sum.ByDate),
	}, nil
}

func (s *Service) GetEventForParticipant(ctx context.Context, responseToken string) (*ParticipantView, error) {
	ev, p, err := s.resolveParticipant(ctx, responseToken)
	if err != nil {
		return nil, err
	}

	view := &ParticipantView{
		Event:       publicEvent(ev),
		Participant: p,
	}

	r, err := s.store.GetResponse(ctx, ev.ID, p.ID)
	if err != nil {
		return nil, storeErr("loading response", err)
	}
	if r != nil {
		view.Selection = append([]string{}, r.SelectedDates...)
	}
	return view, nil
}

// SubmitResponse replaces the participant's answer with selected. Blank and
// repeated ids are dropped before storing. The event status is not checked:
// answers after confirmation only move the statistics of a settled vote.
func (s *Service) SubmitResponse(ctx context.Context, responseToken string, selected []string) (*domain.Response, error) {
	ev, p, err := s.resolveParticipant(ctx, responseToken)
	if err != nil {
		return nil, err
	}

	dates := dedupe(selected)
	if len(dates) == 0 {
		return nil, domain.ErrEmptySelection
	}

	r := &domain.Response{
		ID:            token.New(),
		EventID:       ev.ID,
		ParticipantID: p.ID,
		SelectedDates: dates,
		SubmittedAt:   s.now().UTC(),
	}
	if err := s.store.ReplaceResponse(ctx, r); err != nil {
		return nil, storeErr("saving response", err)
	}
	return r, nil
}

// ConfirmEvent moves a pending event to confirmed on dateID. The checks and
// the write share one store transaction, so two concurrent confirmations
// cannot both succeed.
func (s *Service) ConfirmEvent(ctx context.Context, eventID, organizerToken, dateID, msg string) (*Confirmation, error) {
	var rejected error
	ev, err := s.store.UpdateEvent(ctx, eventID, func(ev *domain.Event) error {
		rejected = confirm(ev, organizerToken, dateID, strings.TrimSpace(msg), s.now().UTC())
		return rejected
	})
	if rejected != nil {
		return nil, rejected
	}
	if err != nil {
		return nil, storeErr("confirming event", err)
	}
	if ev == nil {
		return nil, domain.ErrNotFound
	}

	msgs, err := message.ConfirmationFor(ev)
	if err != nil {
		return nil, err
	}
	return &Confirmation{Event: ev, Messages: msgs}, nil
}

// ParticipantCalendar renders the confirmed slot of the participant's event
// as iCalendar data.
func (s *Service) ParticipantCalendar(ctx context.Context, responseToken string) ([]byte, error) {
	ev, _, err := s.resolveParticipant(ctx, responseToken)
	if err != nil {
		return nil, err
	}
	return message.Calendar(ev)
}

// Overview lists every event with its response statistics, oldest first.
func (s *Service) Overview(ctx context.Context) ([]EventOverview, error) {
	events, err := s.store.ListEvents(ctx)
	if err != nil {
		return nil, storeErr("listing events", err)
	}

	out := make([]EventOverview, 0, len(events))
	for i := range events {
		ev := &events[i]
		responses, err := s.store.ListResponses(ctx, ev.ID)
		if err != nil {
			return nil, storeErr("loading responses", err)
		}
		sum := availability.Summarize(ev, responses)
		out = append(out, EventOverview{
			ID:             ev.ID,
			Title:          ev.Title,
			OrganizerName:  ev.OrganizerName,
			Status:         ev.Status,
			Participants:   len(ev.Participants),
			TotalResponses: sum.TotalResponses,
			ResponseRate:   sum.ResponseRate,
			CreatedAt:      ev.CreatedAt,
		})
	}
	return out, nil
}

func (s *Service) resolveParticipant(ctx context.Context, responseToken string) (*domain.Event, domain.Participant, error) {
	// Tokens that could never have been issued skip the store.
	if !token.Valid(responseToken) {
		return nil, domain.Participant{}, domain.ErrNotFound
	}
	ev, participantID, err := s.store.GetEventByResponseToken(ctx, responseToken)
	if err != nil {
		return nil, domain.Participant{}, storeErr("loading event", err)
	}
	if ev == nil {
		return nil, domain.Participant{}, domain.ErrNotFound
	}
	p, ok := ev.Participant(participantID)
	if !ok {
		return nil, domain.Participant{}, domain.ErrNotFound
	}
	return ev, p, nil
}

func confirm(ev *domain.Event, organizerToken, dateID, msg string, now time.Time) error {
	if subtle.ConstantTimeCompare([]byte(ev.OrganizerToken), []byte(organizerToken)) != 1 {
		return domain.ErrUnauthorized
	}
	if ev.Status == domain.StatusConfirmed {
		return domain.ErrAlreadyConfirmed
	}
	d, ok := ev.ProposedDate(dateID)
	if !ok {
		return domain.ErrInvalidDate
	}

	// d is a value copy of the proposed date.
	ev.Status = domain.StatusConfirmed
	ev.ConfirmedDate = &d
	ev.ConfirmationMessage = msg
	ev.ConfirmedAt = &now
	return nil
}

func publicEvent(ev *domain.Event) PublicEvent {
	pe := PublicEvent{
		ID:                  ev.ID,
		Title:               ev.Title,
		Description:         ev.Description,
		OrganizerName:       ev.OrganizerName,
		ProposedDates:       append([]domain.ProposedDate{}, ev.ProposedDates...),
		Status:              ev.Status,
		ConfirmationMessage: ev.ConfirmationMessage,
	}
	if ev.ConfirmedDate != nil {
		d := *ev.ConfirmedDate
		pe.ConfirmedDate = &d
	}
	return pe
}

func validateDate(d domain.ProposedDate) error {
	if _, err := time.Parse(domain.DateLayout, d.Date); err != nil {
		return invalid(fmt.Sprintf("date %q is not YYYY-MM-DD", d.Date))
	}
	if _, err := time.Parse(domain.TimeLayout, d.StartTime); err != nil {
		return invalid(fmt.Sprintf("startTime %q is not HH:MM", d.StartTime))
	}
	if _, err := time.Parse(domain.TimeLayout, d.EndTime); err != nil {
		return invalid(fmt.Sprintf("endTime %q is not HH:MM", d.EndTime))
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, reason)
}

// storeErr tags a persistence failure with ErrStoreIO while keeping the
// original error in the chain.
func storeErr(op string, err error) error {
	if errors.Is(err, domain.ErrStoreIO) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreIO, err)
}
