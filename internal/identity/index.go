package identity

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Index is an exact nearest-neighbor index over fixed-dimension
// embeddings. Search and Add share one mutex: the underlying slices
// are not safe to read while a concurrent add grows them, so the index
// is deliberately single-operation-at-a-time. Callers never see the
// raw storage.
type Index struct {
	mu      sync.Mutex
	dim     int
	ids     []int64
	vectors [][]float32
}

// NewIndex creates an empty index for dim-dimensional vectors.
func NewIndex(dim int) *Index {
	return &Index{dim: dim}
}

// Add inserts a vector under the given id.
func (x *Index) Add(id int64, vec []float32) error {
	if len(vec) != x.dim {
		return fmt.Errorf("vector dimension %d, index expects %d", len(vec), x.dim)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	stored := make([]float32, x.dim)
	copy(stored, vec)
	x.ids = append(x.ids, id)
	x.vectors = append(x.vectors, stored)
	return nil
}

// Search returns the k nearest stored vectors to vec by euclidean
// distance, closest first. Fewer than k results are returned when the
// index holds fewer entries; an empty index yields empty slices.
func (x *Index) Search(vec []float32, k int) ([]float64, []int64) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if k <= 0 || len(x.ids) == 0 {
		return nil, nil
	}

	type hit struct {
		dist float64
		id   int64
	}
	hits := make([]hit, len(x.ids))
	for i, stored := range x.vectors {
		hits[i] = hit{dist: euclidean(vec, stored), id: x.ids[i]}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	if k > len(hits) {
		k = len(hits)
	}
	dists := make([]float64, k)
	ids := make([]int64, k)
	for i := 0; i < k; i++ {
		dists[i] = hits[i].dist
		ids[i] = hits[i].id
	}
	return dists, ids
}

// Len reports the number of stored vectors.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.ids)
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
