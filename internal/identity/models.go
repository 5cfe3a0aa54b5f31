package identity

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/argus-vision/argus/internal/wire"
)

// Person aggregates every embedding presumed to belong to one
// individual, together with the ordered history of sightings.
type Person struct {
	ID           string     `json:"id"`
	Name         string     `json:"name,omitempty"`
	EmbeddingIDs []int64    `json:"embedding_ids"`
	Sightings    []Sighting `json:"sightings"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Sighting is one (location, time) observation of a person. Seq is the
// store's monotonically increasing sighting row id; the watchlist uses
// it as its alert-dedup marker.
type Sighting struct {
	Seq      int64         `json:"seq"`
	Location wire.Location `json:"location"`
	SeenAt   time.Time     `json:"seen_at"`
}

// StoredEmbedding pairs an embedding id with its vector, as persisted
// alongside the owning person. Used to rebuild the index at startup.
type StoredEmbedding struct {
	ID     int64
	Vector []float32
}

// NewID returns a fresh person or watchlist-entry id.
func NewID() string {
	return uuid.NewString()
}

// NewEmbeddingID returns a process-unique positive 63-bit embedding id.
func NewEmbeddingID() int64 {
	id := uuid.New()
	v := binary.BigEndian.Uint64(id[:8])
	return int64(v & math.MaxInt64)
}

// EncodeVector serializes an embedding to the little-endian float32
// blob layout used by the store.
func EncodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(blob []byte) []float32 {
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}
