package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/argus-vision/argus/internal/db"
	"github.com/argus-vision/argus/internal/frames"
	"github.com/argus-vision/argus/internal/identity"
	"github.com/argus-vision/argus/internal/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupRunner(t *testing.T, detector Detector, embedder Embedder) (*Runner, *frames.Store, identity.Repository) {
	t.Helper()

	root := t.TempDir()
	database, err := db.New(filepath.Join(root, "argus.db"), nil)
	if err != nil {
		t.Fatalf("create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	repo := identity.NewRepository(database.Conn())
	resolver := identity.NewResolver(identity.NewIndex(128), repo, 15.0, discardLogger())
	store := frames.NewStore(root)
	runner := NewRunner(store, detector, embedder, resolver, time.Hour, discardLogger())
	return runner, store, repo
}

func writeFrame(t *testing.T, store *frames.Store, loc wire.Location, data []byte, ts string) string {
	t.Helper()
	path, err := store.Write(loc, data, ts)
	if err != nil {
		t.Fatalf("write frame: %v", err)
	}
	return path
}

func TestRunner_ProcessesPendingFrames(t *testing.T) {
	runner, store, repo := setupRunner(t, FullFrameDetector{}, HashEmbedder{Dim: 128})
	ctx := context.Background()

	loc := wire.Location{Lat: 32.0, Lng: 34.0}
	path := writeFrame(t, store, loc, []byte("face-bytes"), "20240501_120000")

	n, err := runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if n != 1 {
		t.Errorf("processed = %d, want 1", n)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("processed frame file still on disk")
	}

	persons, err := repo.ListPersons(ctx)
	if err != nil {
		t.Fatalf("ListPersons() error = %v", err)
	}
	if len(persons) != 1 {
		t.Fatalf("persons = %d, want 1", len(persons))
	}
	if len(persons[0].Sightings) != 1 || persons[0].Sightings[0].Location != loc {
		t.Errorf("sightings = %+v, want one at %+v", persons[0].Sightings, loc)
	}
}

func TestRunner_SameFaceMergesIntoOnePerson(t *testing.T) {
	runner, store, repo := setupRunner(t, FullFrameDetector{}, HashEmbedder{Dim: 128})
	ctx := context.Background()

	// Identical crops embed identically, so the second frame must merge.
	writeFrame(t, store, wire.Location{Lat: 1, Lng: 1}, []byte("same-face"), "20240501_120000")
	writeFrame(t, store, wire.Location{Lat: 2, Lng: 2}, []byte("same-face"), "20240501_120100")

	if _, err := runner.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	persons, err := repo.ListPersons(ctx)
	if err != nil {
		t.Fatalf("ListPersons() error = %v", err)
	}
	if len(persons) != 1 {
		t.Fatalf("persons = %d, want 1", len(persons))
	}
	if len(persons[0].Sightings) != 2 {
		t.Errorf("sightings = %d, want 2", len(persons[0].Sightings))
	}
}

type failingDetector struct{}

func (failingDetector) Detect(context.Context, []byte) ([][]byte, error) {
	return nil, errors.New("no face found")
}

func TestRunner_DiscardsUndetectableFrames(t *testing.T) {
	runner, store, repo := setupRunner(t, failingDetector{}, HashEmbedder{Dim: 128})
	ctx := context.Background()

	path := writeFrame(t, store, wire.Location{Lat: 1, Lng: 1}, []byte("noise"), "20240501_120000")

	n, err := runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if n != 1 {
		t.Errorf("processed = %d, want 1", n)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("undetectable frame left on disk")
	}

	count, err := repo.CountPersons(ctx)
	if err != nil {
		t.Fatalf("CountPersons() error = %v", err)
	}
	if count != 0 {
		t.Errorf("persons = %d, want 0", count)
	}
}

func TestRunner_EmptyScanIsNoop(t *testing.T) {
	runner, _, _ := setupRunner(t, FullFrameDetector{}, HashEmbedder{Dim: 128})

	n, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if n != 0 {
		t.Errorf("processed = %d, want 0", n)
	}
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := HashEmbedder{Dim: 128}

	a, err := e.Embed(context.Background(), []byte("crop"))
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	b, err := e.Embed(context.Background(), []byte("crop"))
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(a) != 128 {
		t.Fatalf("dim = %d, want 128", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embeddings differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
}
