package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/mkmk6794/timepick/internal/domain"
)

var (
	eventsBucket          = []byte("events")
	organizerTokensBucket = []byte("organizer_tokens")
	responseTokensBucket  = []byte("response_tokens")
	responsesBucket       = []byte("responses")
	responseKeysBucket    = []byte("response_keys")
)

var allBuckets = [][]byte{
	eventsBucket,
	organizerTokensBucket,
	responseTokensBucket,
	responsesBucket,
	responseKeysBucket,
}

// tokenRef is the value stored under a participant's response token.
type tokenRef struct {
	EventID       string `json:"eventId"`
	ParticipantID string `json:"participantId"`
}

type BBoltStore struct {
	db *bolt.DB
}

var _ Store = (*BBoltStore)(nil)

func NewBBoltStore(path string) (*BBoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db at %s: %w", path, err)
	}

	// Reason: buckets must exist before any read/write operations
	err = db.Update(func(tx *bolt.Tx) error {
		return createBuckets(tx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BBoltStore{db: db}, nil
}

func createBuckets(tx *bolt.Tx) error {
	for _, name := range allBuckets {
		if _, err := tx.CreateBucketIfNotExists(name); err != nil {
			return fmt.Errorf("bucket %s: %w", name, err)
		}
	}
	return nil
}

func (s *BBoltStore) CreateEvent(_ context.Context, ev *domain.Event) error {
	if err := validateEvent(ev); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(eventsBucket).Get([]byte(ev.ID)) != nil {
			return fmt.Errorf("event %s already exists", ev.ID)
		}
		return putEvent(tx, ev)
	})
}

func (s *BBoltStore) GetEvent(_ context.Context, id string) (*domain.Event, error) {
	var ev *domain.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		ev, err = getEvent(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *BBoltStore) GetEventByOrganizerToken(_ context.Context, token string) (*domain.Event, error) {
	var ev *domain.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(organizerTokensBucket).Get([]byte(token))
		if id == nil {
			return nil
		}
		var err error
		ev, err = getEvent(tx, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *BBoltStore) GetEventByResponseToken(_ context.Context, token string) (*domain.Event, string, error) {
	var (
		ev            *domain.Event
		participantID string
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(responseTokensBucket).Get([]byte(token))
		if data == nil {
			return nil
		}
		var ref tokenRef
		if err := json.Unmarshal(data, &ref); err != nil {
			return fmt.Errorf("unmarshaling response token ref: %w", err)
		}
		var err error
		ev, err = getEvent(tx, ref.EventID)
		if ev != nil {
			participantID = ref.ParticipantID
		}
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return ev, participantID, nil
}

func (s *BBoltStore) UpdateEvent(_ context.Context, id string, fn func(*domain.Event) error) (*domain.Event, error) {
	var ev *domain.Event
	err := s.db.Update(func(tx *bolt.Tx) error {
		current, err := getEvent(tx, id)
		if err != nil || current == nil {
			return err
		}
		if err := fn(current); err != nil {
			return err
		}
		if current.ID != id {
			return fmt.Errorf("event %s: id must not change", id)
		}
		// Reason: the organizer token is indexed; drop the old entry before rewriting
		if err := deleteEventIndexes(tx, id); err != nil {
			return err
		}
		if err := putEvent(tx, current); err != nil {
			return err
		}
		ev = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *BBoltStore) ListEvents(_ context.Context) ([]domain.Event, error) {
	var events []domain.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(eventsBucket).ForEach(func(k, v []byte) error {
			var ev domain.Event
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("unmarshaling event %s: %w", string(k), err)
			}
			events = append(events, ev)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortEvents(events)
	return events, nil
}

func (s *BBoltStore) ListResponses(_ context.Context, eventID string) ([]domain.Response, error) {
	var responses []domain.Response
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		responses, err = eventResponses(tx, eventID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return responses, nil
}

func (s *BBoltStore) GetResponse(_ context.Context, eventID, participantID string) (*domain.Response, error) {
	var resp *domain.Response
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(responseKeysBucket).Get(responseKey(eventID, participantID))
		if id == nil {
			return nil
		}
		var err error
		resp, err = getResponse(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *BBoltStore) ReplaceResponse(_ context.Context, r *domain.Response) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return replaceResponse(tx, r)
	})
}

func (s *BBoltStore) Export(_ context.Context) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{Events: []domain.Event{}, Responses: []domain.Response{}}
	err := s.db.View(func(tx *bolt.Tx) error {
		err := tx.Bucket(eventsBucket).ForEach(func(k, v []byte) error {
			var ev domain.Event
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("unmarshaling event %s: %w", string(k), err)
			}
			snap.Events = append(snap.Events, ev)
			return nil
		})
		if err != nil {
			return err
		}
		return tx.Bucket(responsesBucket).ForEach(func(k, v []byte) error {
			var r domain.Response
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshaling response %s: %w", string(k), err)
			}
			snap.Responses = append(snap.Responses, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortEvents(snap.Events)
	return snap, nil
}

// Import loads snapshot events, skipping IDs that already exist.
func (s *BBoltStore) Import(_ context.Context, snap *domain.Snapshot) (int, error) {
	var added int
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		added, err = importSnapshot(tx, snap, true)
		return err
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

func (s *BBoltStore) ReplaceAll(_ context.Context, snap *domain.Snapshot) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("deleting bucket %s: %w", name, err)
			}
		}
		if err := createBuckets(tx); err != nil {
			return err
		}
		_, err := importSnapshot(tx, snap, false)
		return err
	})
}

func (s *BBoltStore) Close() error {
	return s.db.Close()
}

func importSnapshot(tx *bolt.Tx, snap *domain.Snapshot, skipExisting bool) (int, error) {
	imported := make(map[string]bool, len(snap.Events))
	for i := range snap.Events {
		ev := &snap.Events[i]
		if err := validateEvent(ev); err != nil {
			return 0, err
		}
		if tx.Bucket(eventsBucket).Get([]byte(ev.ID)) != nil {
			if skipExisting {
				log.WithField("event_id", ev.ID).Debug("import: event already exists, skipping")
				continue
			}
			return 0, fmt.Errorf("duplicate event %s in snapshot", ev.ID)
		}
		if err := putEvent(tx, ev); err != nil {
			return 0, err
		}
		imported[ev.ID] = true
	}

	for _, r := range latestResponses(snap.Responses) {
		if !imported[r.EventID] {
			continue
		}
		if err := replaceResponse(tx, &r); err != nil {
			return 0, err
		}
	}
	return len(imported), nil
}

func getEvent(tx *bolt.Tx, id string) (*domain.Event, error) {
	data := tx.Bucket(eventsBucket).Get([]byte(id))
	if data == nil {
		return nil, nil
	}
	var ev domain.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("unmarshaling event %s: %w", id, err)
	}
	return &ev, nil
}

func putEvent(tx *bolt.Tx, ev *domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event %s: %w", ev.ID, err)
	}
	if err := tx.Bucket(eventsBucket).Put([]byte(ev.ID), data); err != nil {
		return fmt.Errorf("writing event %s: %w", ev.ID, err)
	}

	orgTokens := tx.Bucket(organizerTokensBucket)
	if owner := orgTokens.Get([]byte(ev.OrganizerToken)); owner != nil && string(owner) != ev.ID {
		return fmt.Errorf("organizer token of event %s already in use", ev.ID)
	}
	if err := orgTokens.Put([]byte(ev.OrganizerToken), []byte(ev.ID)); err != nil {
		return fmt.Errorf("indexing organizer token of event %s: %w", ev.ID, err)
	}

	respTokens := tx.Bucket(responseTokensBucket)
	for _, p := range ev.Participants {
		if existing := respTokens.Get([]byte(p.ResponseToken)); existing != nil {
			return fmt.Errorf("response token of participant %s already in use", p.ID)
		}
		ref, err := json.Marshal(tokenRef{EventID: ev.ID, ParticipantID: p.ID})
		if err != nil {
			return fmt.Errorf("marshaling token ref: %w", err)
		}
		if err := respTokens.Put([]byte(p.ResponseToken), ref); err != nil {
			return fmt.Errorf("indexing response token of participant %s: %w", p.ID, err)
		}
	}
	return nil
}

func deleteEventIndexes(tx *bolt.Tx, id string) error {
	ev, err := getEvent(tx, id)
	if err != nil || ev == nil {
		return err
	}
	if err := tx.Bucket(organizerTokensBucket).Delete([]byte(ev.OrganizerToken)); err != nil {
		return fmt.Errorf("removing organizer token of event %s: %w", id, err)
	}
	respTokens := tx.Bucket(responseTokensBucket)
	for _, p := range ev.Participants {
		if err := respTokens.Delete([]byte(p.ResponseToken)); err != nil {
			return fmt.Errorf("removing response token of participant %s: %w", p.ID, err)
		}
	}
	return nil
}

// responseKey orders the secondary index by event so one event's
// responses can be read with a prefix scan.
func responseKey(eventID, participantID string) []byte {
	return []byte(eventID + "\x00" + participantID)
}

func getResponse(tx *bolt.Tx, id []byte) (*domain.Response, error) {
	data := tx.Bucket(responsesBucket).Get(id)
	if data == nil {
		return nil, nil
	}
	var r domain.Response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshaling response %s: %w", string(id), err)
	}
	return &r, nil
}

func eventResponses(tx *bolt.Tx, eventID string) ([]domain.Response, error) {
	prefix := []byte(eventID + "\x00")
	c := tx.Bucket(responseKeysBucket).Cursor()

	var out []domain.Response
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		r, err := getResponse(tx, v)
		if err != nil {
			return nil, err
		}
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func replaceResponse(tx *bolt.Tx, r *domain.Response) error {
	if r.ID == "" || r.EventID == "" || r.ParticipantID == "" {
		return fmt.Errorf("response must carry id, event id and participant id")
	}

	keys := tx.Bucket(responseKeysBucket)
	responses := tx.Bucket(responsesBucket)
	key := responseKey(r.EventID, r.ParticipantID)

	if old := keys.Get(key); old != nil {
		if err := responses.Delete(old); err != nil {
			return fmt.Errorf("removing previous response %s: %w", string(old), err)
		}
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling response %s: %w", r.ID, err)
	}
	if err := responses.Put([]byte(r.ID), data); err != nil {
		return fmt.Errorf("writing response %s: %w", r.ID, err)
	}
	if err := keys.Put(key, []byte(r.ID)); err != nil {
		return fmt.Errorf("indexing response %s: %w", r.ID, err)
	}
	return nil
}
