package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/argus-vision/argus/internal/wire"
)

const testThreshold = 15.0

func newTestResolver(t *testing.T) (*Resolver, Repository) {
	t.Helper()
	repo := setupTestRepo(t)
	resolver := NewResolver(NewIndex(128), repo, testThreshold, nil)
	return resolver, repo
}

func TestResolver_FirstInsertCreatesPerson(t *testing.T) {
	resolver, repo := newTestResolver(t)
	ctx := context.Background()

	p, created, err := resolver.Insert(ctx, vec(128, 0), wire.Location{Lat: 32.0, Lng: 34.0}, time.Now())
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if !created {
		t.Error("first insert should create a person")
	}
	if len(p.Sightings) != 1 {
		t.Errorf("Sightings = %d, want 1", len(p.Sightings))
	}

	count, _ := repo.CountPersons(ctx)
	if count != 1 {
		t.Errorf("person count = %d, want 1", count)
	}
}

func TestResolver_MergeCreateBoundary(t *testing.T) {
	const delta = 0.5

	tests := []struct {
		name        string
		distance    float64
		wantCreated bool
		wantPersons int
	}{
		{"below threshold merges", testThreshold - delta, false, 1},
		{"above threshold creates", testThreshold + delta, true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver, repo := newTestResolver(t)
			ctx := context.Background()

			base, _, err := resolver.Insert(ctx, vec(128, 0), wire.Location{Lat: 1, Lng: 1}, time.Now())
			if err != nil {
				t.Fatalf("Insert() error = %v", err)
			}

			p, created, err := resolver.Insert(ctx, vec(128, float32(tt.distance)), wire.Location{Lat: 2, Lng: 2}, time.Now())
			if err != nil {
				t.Fatalf("Insert() error = %v", err)
			}
			if created != tt.wantCreated {
				t.Errorf("created = %v, want %v", created, tt.wantCreated)
			}

			count, _ := repo.CountPersons(ctx)
			if count != tt.wantPersons {
				t.Errorf("person count = %d, want %d", count, tt.wantPersons)
			}

			if !tt.wantCreated {
				if p.ID != base.ID {
					t.Errorf("merged into person %s, want %s", p.ID, base.ID)
				}
				if len(p.EmbeddingIDs) != 2 {
					t.Errorf("EmbeddingIDs = %v, want 2 entries", p.EmbeddingIDs)
				}
				if len(p.Sightings) != 2 {
					t.Errorf("Sightings = %d, want 2", len(p.Sightings))
				}
			}
		})
	}
}

func TestResolver_IndexStoreConsistency(t *testing.T) {
	resolver, repo := newTestResolver(t)
	ctx := context.Background()

	// Mixed merges and creates.
	inserts := []float32{0, 1, 2, 100, 101, 300}
	for _, f := range inserts {
		if _, _, err := resolver.Insert(ctx, vec(128, f), wire.Location{}, time.Now()); err != nil {
			t.Fatalf("Insert(%v) error = %v", f, err)
		}
	}

	if resolver.index.Len() != len(inserts) {
		t.Errorf("index size = %d, want %d", resolver.index.Len(), len(inserts))
	}

	// Every indexed embedding id belongs to exactly one person.
	persons, err := repo.ListPersons(ctx)
	if err != nil {
		t.Fatalf("ListPersons() error = %v", err)
	}
	owners := map[int64]int{}
	for _, p := range persons {
		for _, eid := range p.EmbeddingIDs {
			owners[eid]++
		}
	}
	for _, eid := range resolver.index.ids {
		if owners[eid] != 1 {
			t.Errorf("embedding %d owned by %d persons, want 1", eid, owners[eid])
		}
	}
}

// failingRepo simulates a store outage during the person write.
type failingRepo struct {
	Repository
}

var errStoreDown = errors.New("store unavailable")

func (f *failingRepo) CreatePerson(ctx context.Context, embeddingID int64, vector []float32, loc wire.Location, seenAt time.Time) (*Person, error) {
	return nil, errStoreDown
}

func TestResolver_StoreFailureDropsObservation(t *testing.T) {
	repo := setupTestRepo(t)
	resolver := NewResolver(NewIndex(128), &failingRepo{repo}, testThreshold, nil)

	_, _, err := resolver.Insert(context.Background(), vec(128, 0), wire.Location{}, time.Now())
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("Insert() error = %v, want store failure", err)
	}

	// The embedding must not be indexed: no entry may point at a person
	// record that was never written.
	if resolver.index.Len() != 0 {
		t.Errorf("index size = %d after failed store write, want 0", resolver.index.Len())
	}
}

func TestResolver_Rebuild(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	first := NewResolver(NewIndex(128), repo, testThreshold, nil)
	if _, _, err := first.Insert(ctx, vec(128, 0), wire.Location{Lat: 5, Lng: 5}, time.Now()); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	// Fresh index, as after a restart.
	second := NewResolver(NewIndex(128), repo, testThreshold, nil)
	if err := second.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	p, created, err := second.Insert(ctx, vec(128, 1), wire.Location{Lat: 6, Lng: 6}, time.Now())
	if err != nil {
		t.Fatalf("Insert() after rebuild error = %v", err)
	}
	if created {
		t.Error("insert near rebuilt embedding should merge, not create")
	}
	if len(p.Sightings) != 2 {
		t.Errorf("Sightings = %d, want 2", len(p.Sightings))
	}
}

func TestResolver_Match(t *testing.T) {
	resolver, _ := newTestResolver(t)
	ctx := context.Background()

	if p, err := resolver.Match(ctx, vec(128, 0)); err != nil || p != nil {
		t.Errorf("Match() on empty index = (%v, %v), want (nil, nil)", p, err)
	}

	inserted, _, err := resolver.Insert(ctx, vec(128, 0), wire.Location{}, time.Now())
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	p, err := resolver.Match(ctx, vec(128, 1))
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if p == nil || p.ID != inserted.ID {
		t.Errorf("Match() = %v, want person %s", p, inserted.ID)
	}

	far, err := resolver.Match(ctx, vec(128, 1000))
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if far != nil {
		t.Errorf("Match() far from any embedding = %+v, want nil", far)
	}
}
