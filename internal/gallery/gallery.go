// Package gallery holds the enrolled faces and matches embeddings
// against them.
package gallery

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// UnknownName is reported when no enrolled face clears the match
// threshold.
const UnknownName = "Unknown"

const (
	// matchThreshold is the raw cosine similarity an embedding must
	// reach to count as the enrolled person.
	matchThreshold = 0.4
	// epsilon keeps the similarity denominator away from zero.
	epsilon = 1e-6
)

// KnownFace is one enrolled identity.
type KnownFace struct {
	ID        uuid.UUID
	Name      string
	Embedding []float32
	Thumbnail []byte // PNG, small preview of the enrolled crop
	CreatedAt time.Time
}

// Match is the result of comparing an embedding against the gallery.
// Score is the remapped confidence for a known face and the raw best
// similarity for an unknown one.
type Match struct {
	ID    uuid.UUID
	Name  string
	Score float64
}

// Gallery is the in-memory face collection. Faces keep their insertion
// order, and ties go to the earliest one. All reads and writes happen
// on the owning goroutine; the Gallery carries no lock.
type Gallery struct {
	faces []KnownFace
}

// New creates a Gallery preloaded with the given faces.
func New(faces ...KnownFace) *Gallery {
	g := &Gallery{faces: make([]KnownFace, 0, len(faces))}
	g.faces = append(g.faces, faces...)
	return g
}

// Add appends a face to the gallery.
func (g *Gallery) Add(face KnownFace) {
	g.faces = append(g.faces, face)
}

// Remove deletes the face with the given id and reports whether it
// was present.
func (g *Gallery) Remove(id uuid.UUID) bool {
	for i, f := range g.faces {
		if f.ID == id {
			g.faces = append(g.faces[:i], g.faces[i+1:]...)
			return true
		}
	}
	return false
}

// Len reports the number of enrolled faces.
func (g *Gallery) Len() int {
	return len(g.faces)
}

// Faces returns a copy of the enrolled faces in insertion order.
func (g *Gallery) Faces() []KnownFace {
	out := make([]KnownFace, len(g.faces))
	copy(out, g.faces)
	return out
}

// Match finds the enrolled face most similar to the embedding. With
// an empty gallery, or when nothing reaches the threshold, the result
// carries UnknownName.
func (g *Gallery) Match(embedding []float32) Match {
	if len(g.faces) == 0 {
		return Match{Name: UnknownName}
	}

	best := 0
	bestScore := math.Inf(-1)
	for i, f := range g.faces {
		if s := CosineSimilarity(embedding, f.Embedding); s > bestScore {
			best = i
			bestScore = s
		}
	}

	if bestScore < matchThreshold {
		return Match{Name: UnknownName, Score: bestScore}
	}
	return Match{
		ID:    g.faces[best].ID,
		Name:  g.faces[best].Name,
		Score: remapScore(bestScore),
	}
}

// remapScore spreads raw similarities in [threshold, 1] over the
// displayed confidence range [0.8, 1].
func remapScore(s float64) float64 {
	return 0.8 + ((s-matchThreshold)/(1-matchThreshold))*0.2
}

// CosineSimilarity compares two embeddings. Mismatched or empty
// vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na)*math.Sqrt(nb) + epsilon)
}
