package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/argus-vision/argus/internal/wire"
)

// Resolver turns a stream of face embeddings into stable person
// records: each incoming embedding either merges into the person owning
// its nearest indexed neighbor or creates a new person.
//
// The index is only updated after the store write is acknowledged, so
// an index entry can never point at a missing person. The converse can
// happen (store write succeeds, process dies before the index add);
// that record is simply unreachable for matching until its embedding is
// reloaded by Rebuild.
type Resolver struct {
	index     *Index
	repo      Repository
	threshold float64
	logger    *slog.Logger

	// mu serializes the whole search→store→index sequence. Without it,
	// two near-simultaneous embeddings of one individual could both
	// miss the index and create duplicate persons.
	mu sync.Mutex
}

func NewResolver(index *Index, repo Repository, threshold float64, logger *slog.Logger) *Resolver {
	return &Resolver{
		index:     index,
		repo:      repo,
		threshold: threshold,
		logger:    logger,
	}
}

// Threshold reports the merge distance in use.
func (r *Resolver) Threshold() float64 {
	return r.threshold
}

// Rebuild reloads every persisted embedding into the index. Called
// once at startup before any Insert.
func (r *Resolver) Rebuild(ctx context.Context) error {
	embeddings, err := r.repo.AllEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("load embeddings: %w", err)
	}
	for _, e := range embeddings {
		if err := r.index.Add(e.ID, e.Vector); err != nil {
			return fmt.Errorf("index embedding %d: %w", e.ID, err)
		}
	}
	if r.logger != nil {
		r.logger.Info("vector index rebuilt", "embeddings", len(embeddings))
	}
	return nil
}

// Insert resolves one embedding observed at loc/seenAt. It returns the
// person the observation was attributed to and whether that person was
// newly created. A store failure drops the observation: the embedding
// is not indexed and the error is returned.
func (r *Resolver) Insert(ctx context.Context, embedding []float32, loc wire.Location, seenAt time.Time) (*Person, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dists, ids := r.index.Search(embedding, 1)
	newEmbeddingID := NewEmbeddingID()

	if len(ids) > 0 && dists[0] <= r.threshold {
		if err := r.repo.AppendSighting(ctx, ids[0], newEmbeddingID, embedding, loc, seenAt); err != nil {
			return nil, false, fmt.Errorf("append sighting: %w", err)
		}
		if err := r.index.Add(newEmbeddingID, embedding); err != nil {
			return nil, false, fmt.Errorf("index embedding: %w", err)
		}

		person, err := r.repo.FindPersonByEmbeddingID(ctx, newEmbeddingID)
		if err != nil {
			return nil, false, fmt.Errorf("load merged person: %w", err)
		}
		if r.logger != nil {
			r.logger.Debug("merged sighting into existing person",
				"person_id", person.ID, "distance", dists[0])
		}
		return person, false, nil
	}

	person, err := r.repo.CreatePerson(ctx, newEmbeddingID, embedding, loc, seenAt)
	if err != nil {
		return nil, false, fmt.Errorf("create person: %w", err)
	}
	if err := r.index.Add(newEmbeddingID, embedding); err != nil {
		return nil, false, fmt.Errorf("index embedding: %w", err)
	}

	if r.logger != nil {
		r.logger.Debug("created new person", "person_id", person.ID)
	}
	return person, true, nil
}

// Match finds the person owning the nearest indexed embedding, or nil
// when nothing is within the threshold. Read-only: nothing is indexed
// or stored.
func (r *Resolver) Match(ctx context.Context, embedding []float32) (*Person, error) {
	dists, ids := r.index.Search(embedding, 1)
	if len(ids) == 0 || dists[0] > r.threshold {
		return nil, nil
	}
	return r.repo.FindPersonByEmbeddingID(ctx, ids[0])
}
