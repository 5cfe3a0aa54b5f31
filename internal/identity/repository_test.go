package identity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/argus-vision/argus/internal/db"
	"github.com/argus-vision/argus/internal/wire"
)

func setupTestRepo(t *testing.T) Repository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	database, err := db.New(dbPath, nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return NewRepository(database.Conn())
}

func TestRepository_CreatePerson(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	loc := wire.Location{Lat: 32.0, Lng: 34.0}
	seenAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	p, err := repo.CreatePerson(ctx, 42, vec(128, 1), loc, seenAt)
	if err != nil {
		t.Fatalf("CreatePerson() error = %v", err)
	}
	if p.ID == "" {
		t.Error("person ID is empty")
	}
	if len(p.EmbeddingIDs) != 1 || p.EmbeddingIDs[0] != 42 {
		t.Errorf("EmbeddingIDs = %v, want [42]", p.EmbeddingIDs)
	}
	if len(p.Sightings) != 1 {
		t.Fatalf("Sightings = %d, want 1", len(p.Sightings))
	}
	if p.Sightings[0].Location != loc {
		t.Errorf("sighting location = %+v, want %+v", p.Sightings[0].Location, loc)
	}
}

func TestRepository_AppendSighting(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	locA := wire.Location{Lat: 32.0, Lng: 34.0}
	locB := wire.Location{Lat: 40.0, Lng: -74.0}
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	created, err := repo.CreatePerson(ctx, 1, vec(128, 1), locA, t0)
	if err != nil {
		t.Fatalf("CreatePerson() error = %v", err)
	}

	if err := repo.AppendSighting(ctx, 1, 2, vec(128, 2), locB, t0.Add(time.Hour)); err != nil {
		t.Fatalf("AppendSighting() error = %v", err)
	}

	// The person is reachable by both the old and the new embedding id.
	for _, eid := range []int64{1, 2} {
		p, err := repo.FindPersonByEmbeddingID(ctx, eid)
		if err != nil {
			t.Fatalf("FindPersonByEmbeddingID(%d) error = %v", eid, err)
		}
		if p == nil || p.ID != created.ID {
			t.Fatalf("FindPersonByEmbeddingID(%d) = %v, want person %s", eid, p, created.ID)
		}
	}

	p, _ := repo.GetPerson(ctx, created.ID)
	if len(p.EmbeddingIDs) != 2 {
		t.Errorf("EmbeddingIDs = %v, want 2 entries", p.EmbeddingIDs)
	}
	if len(p.Sightings) != 2 {
		t.Fatalf("Sightings = %d, want 2", len(p.Sightings))
	}
	if p.Sightings[1].Location != locB {
		t.Errorf("second sighting at %+v, want %+v", p.Sightings[1].Location, locB)
	}
}

func TestRepository_AppendSighting_UnknownEmbedding(t *testing.T) {
	repo := setupTestRepo(t)

	err := repo.AppendSighting(context.Background(), 999, 1000, vec(128, 1), wire.Location{}, time.Now())
	if err == nil {
		t.Error("AppendSighting() with unknown embedding id should return error")
	}
}

func TestRepository_FindPersonByEmbeddingID_NotFound(t *testing.T) {
	repo := setupTestRepo(t)

	p, err := repo.FindPersonByEmbeddingID(context.Background(), 12345)
	if err != nil {
		t.Fatalf("FindPersonByEmbeddingID() error = %v", err)
	}
	if p != nil {
		t.Errorf("FindPersonByEmbeddingID() = %+v, want nil", p)
	}
}

func TestRepository_LatestSighting(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p, err := repo.CreatePerson(ctx, 1, vec(128, 1), wire.Location{Lat: 1, Lng: 1}, t0)
	if err != nil {
		t.Fatalf("CreatePerson() error = %v", err)
	}

	first, err := repo.LatestSighting(ctx, p.ID)
	if err != nil {
		t.Fatalf("LatestSighting() error = %v", err)
	}

	if err := repo.AppendSighting(ctx, 1, 2, vec(128, 2), wire.Location{Lat: 2, Lng: 2}, t0.Add(time.Minute)); err != nil {
		t.Fatalf("AppendSighting() error = %v", err)
	}

	latest, err := repo.LatestSighting(ctx, p.ID)
	if err != nil {
		t.Fatalf("LatestSighting() error = %v", err)
	}
	if latest.Seq <= first.Seq {
		t.Errorf("latest seq %d not after first seq %d", latest.Seq, first.Seq)
	}
	if latest.Location.Lat != 2 {
		t.Errorf("latest sighting lat = %v, want 2", latest.Location.Lat)
	}
}

func TestRepository_SetPersonName(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	p, _ := repo.CreatePerson(ctx, 1, vec(128, 1), wire.Location{}, time.Now())

	if err := repo.SetPersonName(ctx, p.ID, "John Doe"); err != nil {
		t.Fatalf("SetPersonName() error = %v", err)
	}

	got, _ := repo.GetPerson(ctx, p.ID)
	if got.Name != "John Doe" {
		t.Errorf("Name = %s, want John Doe", got.Name)
	}
}

func TestRepository_AllEmbeddings(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	v1 := vec(128, 1.5)
	repo.CreatePerson(ctx, 1, v1, wire.Location{}, time.Now())
	repo.AppendSighting(ctx, 1, 2, vec(128, 2.5), wire.Location{}, time.Now())

	embeddings, err := repo.AllEmbeddings(ctx)
	if err != nil {
		t.Fatalf("AllEmbeddings() error = %v", err)
	}
	if len(embeddings) != 2 {
		t.Fatalf("AllEmbeddings() = %d entries, want 2", len(embeddings))
	}

	byID := map[int64][]float32{}
	for _, e := range embeddings {
		byID[e.ID] = e.Vector
	}
	if got := byID[1]; len(got) != 128 || got[0] != 1.5 {
		t.Errorf("embedding 1 round trip = %v...", got[:1])
	}
}

func TestRepository_Config(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if v, err := repo.GetConfig(ctx, "missing"); err != nil || v != "" {
		t.Errorf("GetConfig(missing) = (%q, %v), want empty", v, err)
	}

	if err := repo.SetConfig(ctx, "auth_token", "secret"); err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}
	if err := repo.SetConfig(ctx, "auth_token", "rotated"); err != nil {
		t.Fatalf("SetConfig() upsert error = %v", err)
	}

	v, err := repo.GetConfig(ctx, "auth_token")
	if err != nil || v != "rotated" {
		t.Errorf("GetConfig() = (%q, %v), want rotated", v, err)
	}
}

func TestEncodeDecodeVector(t *testing.T) {
	v := []float32{0, 1.25, -3.5, 1e-7}
	got := DecodeVector(EncodeVector(v))
	if len(got) != len(v) {
		t.Fatalf("decoded length = %d, want %d", len(got), len(v))
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("decoded[%d] = %v, want %v", i, got[i], v[i])
		}
	}
}

func TestNewEmbeddingID_Positive(t *testing.T) {
	seen := map[int64]bool{}
	for i := 0; i < 1000; i++ {
		id := NewEmbeddingID()
		if id < 0 {
			t.Fatalf("NewEmbeddingID() = %d, want non-negative", id)
		}
		if seen[id] {
			t.Fatalf("NewEmbeddingID() repeated %d", id)
		}
		seen[id] = true
	}
}
