package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/mkmk6794/timepick/internal/domain"
)

// Importer adds the events of a snapshot that are not stored yet.
type Importer interface {
	Import(ctx context.Context, snap *domain.Snapshot) (int, error)
}

// ReadFile parses a snapshot file in the {events, responses} layout of the
// legacy data.json.
func ReadFile(path string) (*domain.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file %s: %w", path, err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}
	return &snap, nil
}

// LoadFromFile reads seed data from a JSON file and imports it into the store.
// Events already present are left alone, so restarting with the same file is
// harmless. Returns nil if path is empty (seeding disabled).
func LoadFromFile(ctx context.Context, path string, s Importer) error {
	if path == "" {
		return nil
	}

	snap, err := ReadFile(path)
	if err != nil {
		return err
	}

	added, err := s.Import(ctx, snap)
	if err != nil {
		return fmt.Errorf("importing seed file %s: %w", path, err)
	}

	log.WithFields(log.Fields{
		"file":      path,
		"events":    len(snap.Events),
		"added":     added,
		"responses": len(snap.Responses),
	}).Info("seeded events from file")
	return nil
}
