package model

import (
	"fmt"
	"slices"
)

// SongID is the user-facing stable identifier of a song.
// It is typically derived from the source filename or an external media id.
type SongID string

// SegmentRef identifies one fixed-width time window of a song.
type SegmentRef struct {
	SongID       SongID
	SegmentIndex int // 0-based
}

// String returns a string representation of the SegmentRef.
func (r SegmentRef) String() string {
	return fmt.Sprintf("%s::seg_%04d", r.SongID, r.SegmentIndex)
}

// Mode names a fixed subset and ordering of feature descriptors.
// The mode determines the embedding dimension; embeddings of different
// modes must never be compared.
type Mode int

const (
	// ModeMinimal is chroma + centroid + RMS + tempo (15 dimensions).
	ModeMinimal Mode = iota
	// ModeBalanced adds MFCC(10), spectral contrast and bandwidth (33 dimensions).
	ModeBalanced
	// ModeFull is the complete descriptor catalogue (72 dimensions).
	ModeFull
	// ModeExternal marks embeddings produced outside the signal-processing
	// pipeline (e.g. deep-model segment embeddings). Their dimension is
	// fixed by the producer, not by this package.
	ModeExternal
)

// Dimension returns the embedding dimension for the mode, or 0 for
// ModeExternal where the producer fixes the dimension.
func (m Mode) Dimension() int {
	switch m {
	case ModeMinimal:
		return 15
	case ModeBalanced:
		return 33
	case ModeFull:
		return 72
	default:
		return 0
	}
}

// String returns the stable name of the mode. The names double as
// collection suffixes in external stores.
func (m Mode) String() string {
	switch m {
	case ModeMinimal:
		return "minimal"
	case ModeBalanced:
		return "balanced"
	case ModeFull:
		return "full"
	case ModeExternal:
		return "external"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// ModeByName returns the mode with the given stable name.
func ModeByName(name string) (Mode, bool) {
	switch name {
	case "minimal":
		return ModeMinimal, true
	case "balanced":
		return ModeBalanced, true
	case "full":
		return ModeFull, true
	case "external":
		return ModeExternal, true
	default:
		return 0, false
	}
}

// Embedding is a fixed-length feature vector under a named mode.
// Embeddings are treated as immutable: producers hand out copies, and
// consumers must not mutate the Vector slice.
type Embedding struct {
	Mode   Mode
	Vector []float32
}

// NewEmbedding copies v into a fresh Embedding.
func NewEmbedding(mode Mode, v []float32) Embedding {
	return Embedding{Mode: mode, Vector: slices.Clone(v)}
}

// Dimension returns the vector length.
func (e Embedding) Dimension() int { return len(e.Vector) }

// Clone returns a deep copy of the embedding.
func (e Embedding) Clone() Embedding {
	return Embedding{Mode: e.Mode, Vector: slices.Clone(e.Vector)}
}

// Validate checks that the vector length matches the mode's fixed
// dimension. ModeExternal accepts any non-empty vector.
func (e Embedding) Validate() error {
	if len(e.Vector) == 0 {
		return fmt.Errorf("model: empty embedding vector")
	}
	if want := e.Mode.Dimension(); want > 0 && len(e.Vector) != want {
		return fmt.Errorf("model: mode %s requires dimension %d, got %d", e.Mode, want, len(e.Vector))
	}
	return nil
}

// SongRecord is a registered song: its whole-track embedding plus the
// soft-delete flag. Metadata lives in an external store and is not needed
// for similarity math. Re-registration replaces the record; only
// ExcludedFromSearch is ever mutated in place.
type SongRecord struct {
	SongID             SongID
	Embedding          Embedding
	ExcludedFromSearch bool
}

// SegmentEmbedding is the embedding of one fixed-width window of a song.
// Many SegmentEmbeddings reference one SongRecord. They are stored
// independently and may outlive a deleted parent; reconciling that is an
// external maintenance concern.
type SegmentEmbedding struct {
	SongID       SongID
	SegmentIndex int
	Embedding    Embedding
}

// Ref returns the SegmentRef key of this segment.
func (s SegmentEmbedding) Ref() SegmentRef {
	return SegmentRef{SongID: s.SongID, SegmentIndex: s.SegmentIndex}
}

// SimilarityMatch is one ranked result of a vector query.
// Distance is metric-specific but always lower-is-closer: inner-product
// scores are negated by the index to preserve the convention.
type SimilarityMatch struct {
	SongID   SongID
	Distance float32
}

// SegmentScore is the per-song relevance derived from segment-level
// matches. It is ephemeral: recomputed per query, never persisted.
type SegmentScore struct {
	SongID   SongID
	Score    float64
	HitCount int
	// Coverage is the fraction of query segments that contributed at
	// least one match to this candidate.
	Coverage float64
	// Density is HitCount relative to the maximum possible number of
	// matches (query segments x top-k per segment).
	Density float64
}

// ChainStep is one entry of a chain-search result. Distance carries the
// local query distance (or segment score) for observability; values from
// different steps are independent local measurements and must not be
// compared or summed as a path cost.
type ChainStep struct {
	Seq      int
	SongID   SongID
	Distance float32
}

// ChainResult is the ordered, non-repeating song sequence produced by a
// chain search. It is immutable once returned; a result shorter than the
// requested length means the candidate set was exhausted.
type ChainResult []ChainStep

// SongIDs returns the sequence of song ids in walk order.
func (c ChainResult) SongIDs() []SongID {
	ids := make([]SongID, len(c))
	for i, step := range c {
		ids[i] = step.SongID
	}
	return ids
}
