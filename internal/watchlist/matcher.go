package watchlist

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/argus-vision/argus/internal/identity"
	"github.com/argus-vision/argus/internal/pipeline"
)

// maxRecentAlerts bounds the in-memory alert history kept for the API.
const maxRecentAlerts = 100

// Alert reports that a watchlist entry was seen somewhere new.
type Alert struct {
	EntryID   string            `json:"entry_id"`
	EntryName string            `json:"entry_name"`
	PersonID  string            `json:"person_id"`
	Sighting  identity.Sighting `json:"sighting"`
	RaisedAt  time.Time         `json:"raised_at"`
}

// Matcher enrolls persons of interest and checks the identity index
// for fresh sightings of them.
type Matcher struct {
	repo      Repository
	persons   identity.Repository
	resolver  *identity.Resolver
	embedder  pipeline.Embedder
	photosDir string
	logger    *slog.Logger

	mu     sync.Mutex
	recent []Alert

	now func() time.Time
}

func NewMatcher(repo Repository, persons identity.Repository, resolver *identity.Resolver, embedder pipeline.Embedder, photosDir string, logger *slog.Logger) *Matcher {
	return &Matcher{
		repo:      repo,
		persons:   persons,
		resolver:  resolver,
		embedder:  embedder,
		photosDir: photosDir,
		logger:    logger,
		now:       time.Now,
	}
}

// Enroll adds one person of interest from face crops. The first crop
// doubles as the profile photo. At least one crop must embed for the
// entry to be created.
func (m *Matcher) Enroll(ctx context.Context, name string, crops [][]byte) (*Entry, error) {
	if name == "" {
		return nil, fmt.Errorf("enroll: name is required")
	}
	if len(crops) == 0 {
		return nil, fmt.Errorf("enroll: at least one face crop is required")
	}

	var vectors [][]float32
	for i, crop := range crops {
		vec, err := m.embedder.Embed(ctx, crop)
		if err != nil {
			m.logger.Warn("skipping unembeddable enrollment crop", "name", name, "crop", i, "error", err)
			continue
		}
		vectors = append(vectors, vec)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("enroll %s: no usable face crops", name)
	}

	entry := &Entry{
		ID:        identity.NewID(),
		Name:      name,
		CreatedAt: m.now().UTC(),
	}

	photo, err := m.saveProfilePhoto(entry.ID, crops[0])
	if err != nil {
		return nil, fmt.Errorf("save profile photo: %w", err)
	}
	entry.ProfilePhoto = photo

	if err := m.repo.CreateEntry(ctx, entry, vectors); err != nil {
		return nil, fmt.Errorf("store watchlist entry: %w", err)
	}

	m.logger.Info("watchlist entry enrolled", "entry_id", entry.ID, "name", name, "embeddings", len(vectors))
	return entry, nil
}

func (m *Matcher) saveProfilePhoto(entryID string, data []byte) (string, error) {
	if err := os.MkdirAll(m.photosDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(m.photosDir, entryID+".jpg")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// Check matches every entry against the identity index and returns the
// fresh alerts. An entry alerts only when the matched person's latest
// sighting is newer than the one last reported; the matched person
// also takes on the entry's name.
func (m *Matcher) Check(ctx context.Context) ([]Alert, error) {
	entries, err := m.repo.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}

	var alerts []Alert
	for _, entry := range entries {
		alert, err := m.checkEntry(ctx, entry)
		if err != nil {
			m.logger.Error("watchlist check failed", "entry_id", entry.ID, "error", err)
			continue
		}
		if alert != nil {
			alerts = append(alerts, *alert)
		}
	}

	if len(alerts) > 0 {
		m.remember(alerts)
	}
	return alerts, nil
}

func (m *Matcher) checkEntry(ctx context.Context, entry *Entry) (*Alert, error) {
	vectors, err := m.repo.EntryVectors(ctx, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("load entry vectors: %w", err)
	}

	for _, vec := range vectors {
		person, err := m.resolver.Match(ctx, vec)
		if err != nil {
			return nil, fmt.Errorf("match: %w", err)
		}
		if person == nil {
			continue
		}

		if person.Name != entry.Name {
			if err := m.persons.SetPersonName(ctx, person.ID, entry.Name); err != nil {
				return nil, fmt.Errorf("name matched person: %w", err)
			}
		}

		latest, err := m.persons.LatestSighting(ctx, person.ID)
		if err != nil {
			return nil, fmt.Errorf("latest sighting: %w", err)
		}
		if latest == nil || latest.Seq == entry.LastAlertedSeq {
			return nil, nil
		}

		if err := m.repo.SetLastAlerted(ctx, entry.ID, latest.Seq); err != nil {
			return nil, fmt.Errorf("record alert marker: %w", err)
		}

		alert := &Alert{
			EntryID:   entry.ID,
			EntryName: entry.Name,
			PersonID:  person.ID,
			Sighting:  *latest,
			RaisedAt:  m.now().UTC(),
		}
		m.logger.Warn("watchlist alert",
			"entry_id", entry.ID, "name", entry.Name, "person_id", person.ID,
			"lat", latest.Location.Lat, "lng", latest.Location.Lng, "seen_at", latest.SeenAt)
		return alert, nil
	}
	return nil, nil
}

func (m *Matcher) remember(alerts []Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recent = append(m.recent, alerts...)
	if len(m.recent) > maxRecentAlerts {
		m.recent = m.recent[len(m.recent)-maxRecentAlerts:]
	}
}

// RecentAlerts snapshots the alert history, newest last.
func (m *Matcher) RecentAlerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Alert, len(m.recent))
	copy(out, m.recent)
	return out
}

// Start runs Check on the configured interval until ctx is cancelled.
func (m *Matcher) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("watchlist checker started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("watchlist checker stopped")
			return
		case <-ticker.C:
			if _, err := m.Check(ctx); err != nil {
				m.logger.Error("watchlist check pass failed", "error", err)
			}
		}
	}
}
