// Package index defines the abstract nearest-neighbor stores consumed by
// the similarity engine: a song-level vector index and its segment-level
// analogue. Implementations live in subpackages (memory) or behind
// adapters to external vector databases.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/melodex/distance"
	"github.com/hupe1980/melodex/model"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")
)

// ErrSongNotFound indicates a lookup for an unregistered song id.
type ErrSongNotFound struct {
	SongID model.SongID
}

func (e *ErrSongNotFound) Error() string {
	return fmt.Sprintf("song not found: %s", e.SongID)
}

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// QueryOptions controls the execution of a similarity query.
type QueryOptions struct {
	// ExcludeSongID drops every match belonging to this song. Callers
	// querying from a registered song's own vector set this so the song
	// never appears in its own result list.
	ExcludeSongID model.SongID

	// Filter restricts candidates before ranking. Only songs where
	// Filter returns true are considered; nil admits everything.
	Filter func(model.SongID) bool

	// MaxDistance drops matches with a distance above the threshold.
	// NaN (the default) disables the cutoff.
	MaxDistance float32
}

// DefaultQueryOptions contains the default query configuration.
var DefaultQueryOptions = QueryOptions{
	MaxDistance: float32(math.NaN()),
}

// WithinDistance reports whether d passes the MaxDistance cutoff.
func (o *QueryOptions) WithinDistance(d float32) bool {
	if math.IsNaN(float64(o.MaxDistance)) {
		return true
	}
	return d <= o.MaxDistance
}

// Admits reports whether the song passes the exclusion and filter rules.
func (o *QueryOptions) Admits(id model.SongID) bool {
	if o.ExcludeSongID != "" && id == o.ExcludeSongID {
		return false
	}
	if o.Filter != nil && !o.Filter(id) {
		return false
	}
	return true
}

// Index is a song-level nearest-neighbor store.
//
// Put is an upsert: a second Put for the same id replaces the embedding
// (last-writer-wins under concurrency). Query never returns records whose
// excluded flag is set; an empty or fully-excluded index yields an empty
// result, not an error. Ties are broken by ascending song id.
type Index interface {
	// Put registers or replaces a song record.
	Put(ctx context.Context, rec model.SongRecord) error

	// Get returns the stored record, or *ErrSongNotFound.
	Get(ctx context.Context, id model.SongID) (model.SongRecord, error)

	// SetExcluded toggles the search opt-out flag without touching the
	// embedding. Unknown ids fail with *ErrSongNotFound.
	SetExcluded(ctx context.Context, id model.SongID, excluded bool) error

	// Query returns up to k matches ordered nearest first.
	Query(ctx context.Context, q []float32, k int, metric distance.Metric, optFns ...func(o *QueryOptions)) ([]model.SimilarityMatch, error)

	// Count returns the number of stored records, including excluded ones.
	Count(ctx context.Context) (int, error)
}

// SegmentMatch is one ranked result of a segment-level query.
type SegmentMatch struct {
	Ref      model.SegmentRef
	Distance float32
}

// SegmentIndex is the segment-level analogue of Index, keyed by
// (song id, segment index).
type SegmentIndex interface {
	// PutSegments registers or replaces segment embeddings.
	PutSegments(ctx context.Context, segs []model.SegmentEmbedding) error

	// SegmentsOf returns all segments of a song ordered by segment index.
	// A song with no segments yields an empty slice, not an error.
	SegmentsOf(ctx context.Context, id model.SongID) ([]model.SegmentEmbedding, error)

	// QuerySegments returns up to k segment matches ordered nearest first.
	QuerySegments(ctx context.Context, q []float32, k int, metric distance.Metric, optFns ...func(o *QueryOptions)) ([]SegmentMatch, error)

	// DeleteSegments removes all segments of a song. Removing a song
	// with no segments is a no-op.
	DeleteSegments(ctx context.Context, id model.SongID) error
}

// ValidateK normalizes and checks the k argument of a query.
func ValidateK(k int) error {
	if k <= 0 {
		return ErrInvalidK
	}
	return nil
}
