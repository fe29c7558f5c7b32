// Package store persists events and responses. Lookups that find nothing
// return a nil record and a nil error; every read-modify-write runs inside
// a single transaction.
package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/mkmk6794/timepick/internal/domain"
)

const (
	DriverBBolt  = "bbolt"
	DriverSQLite = "sqlite"
)

type Store interface {
	CreateEvent(ctx context.Context, ev *domain.Event) error
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
	GetEventByOrganizerToken(ctx context.Context, token string) (*domain.Event, error)
	// GetEventByResponseToken also returns the ID of the participant the
	// token belongs to.
	GetEventByResponseToken(ctx context.Context, token string) (*domain.Event, string, error)
	// UpdateEvent loads the event, hands it to fn and persists the result in
	// the same transaction. Nothing is written when fn returns an error.
	UpdateEvent(ctx context.Context, id string, fn func(*domain.Event) error) (*domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)

	ListResponses(ctx context.Context, eventID string) ([]domain.Response, error)
	GetResponse(ctx context.Context, eventID, participantID string) (*domain.Response, error)
	// ReplaceResponse removes any response of the same (event, participant)
	// pair and inserts r, atomically.
	ReplaceResponse(ctx context.Context, r *domain.Response) error

	Export(ctx context.Context) (*domain.Snapshot, error)
	// Import adds events that do not exist yet, together with their
	// responses, and reports how many events were added.
	Import(ctx context.Context, snap *domain.Snapshot) (int, error)
	ReplaceAll(ctx context.Context, snap *domain.Snapshot) error

	Close() error
}

// Open opens the store selected by driver at path.
func Open(driver, path string) (Store, error) {
	switch driver {
	case DriverBBolt, "":
		return NewBBoltStore(path)
	case DriverSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func sortEvents(events []domain.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
}

// latestResponses drops all but the last response of each (event,
// participant) pair, keeping the input order otherwise.
func latestResponses(responses []domain.Response) []domain.Response {
	last := make(map[[2]string]int, len(responses))
	for i, r := range responses {
		last[[2]string{r.EventID, r.ParticipantID}] = i
	}
	out := make([]domain.Response, 0, len(last))
	for i, r := range responses {
		if last[[2]string{r.EventID, r.ParticipantID}] == i {
			out = append(out, r)
		}
	}
	return out
}

func validateEvent(ev *domain.Event) error {
	if ev.ID == "" {
		return fmt.Errorf("event without id")
	}
	if ev.OrganizerToken == "" {
		return fmt.Errorf("event %s without organizer token", ev.ID)
	}
	return nil
}
