// Package pipeline walks the pending-frame directory and turns stored
// frames into person sightings: detect faces, embed them, resolve each
// embedding to a person, delete the frame.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Detector finds faces in one frame and returns a crop per face. An
// empty result means no faces; the frame is still consumed.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([][]byte, error)
}

// Embedder turns one face crop into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, face []byte) ([]float32, error)
}

// FullFrameDetector treats the whole frame as a single face crop, for
// cameras that crop faces on the edge before sending.
type FullFrameDetector struct{}

func (FullFrameDetector) Detect(_ context.Context, image []byte) ([][]byte, error) {
	if len(image) == 0 {
		return nil, nil
	}
	return [][]byte{image}, nil
}

// HashEmbedder derives a deterministic vector from the crop bytes.
// Identical crops always land on the same person, which makes it a
// usable stand-in wherever a real face model is not wired up.
type HashEmbedder struct {
	Dim int
}

func (e HashEmbedder) Embed(_ context.Context, face []byte) ([]float32, error) {
	if e.Dim <= 0 {
		return nil, fmt.Errorf("embedder dimension %d", e.Dim)
	}

	vec := make([]float32, e.Dim)
	seed := sha256.Sum256(face)
	block := seed[:]
	for i := range vec {
		if i%8 == 0 && i > 0 {
			next := sha256.Sum256(block)
			block = next[:]
		}
		bits := binary.BigEndian.Uint32(block[(i%8)*4 : (i%8)*4+4])
		// Spread components over [0,100) so unrelated crops land far
		// outside any sane merge threshold; identical crops are exact.
		vec[i] = float32(bits%100000) / 1000
	}
	return vec, nil
}
