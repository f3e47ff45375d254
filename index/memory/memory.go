// Package memory provides in-memory implementations of the song-level and
// segment-level vector indexes. Reads are lock-free via a copy-on-write
// state snapshot; a single write mutex serializes mutations.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/melodex/distance"
	"github.com/hupe1980/melodex/index"
	"github.com/hupe1980/melodex/model"
	"github.com/hupe1980/melodex/queue"
)

// Compile-time check to ensure Index satisfies the index interface.
var _ index.Index = (*Index)(nil)

// row is one stored song. Rows are append-only; an upsert rewrites the
// vector in a cloned slice, so published states stay immutable.
type row struct {
	songID model.SongID
	mode   model.Mode
	vector []float32
}

// state is the immutable snapshot published to readers.
type state struct {
	rows []row
	byID map[model.SongID]uint32
	// excluded holds row numbers of records opted out of search.
	excluded *roaring.Bitmap
}

func (s *state) clone() *state {
	rows := make([]row, len(s.rows))
	copy(rows, s.rows)

	byID := make(map[model.SongID]uint32, len(s.byID))
	for id, r := range s.byID {
		byID[id] = r
	}

	return &state{
		rows:     rows,
		byID:     byID,
		excluded: s.excluded.Clone(),
	}
}

// Options contains configuration options for the in-memory index.
type Options struct {
	// Dimension is the fixed vector dimensionality. It must be > 0 and
	// is enforced for all puts and queries.
	Dimension int

	// Mode restricts stored embeddings to one feature mode. ModeExternal
	// admits any embedding whose dimension matches.
	Mode model.Mode
}

// Index is an in-memory song-level vector index.
type Index struct {
	state   atomic.Pointer[state]
	writeMu sync.Mutex // serializes writes only
	opts    Options
}

// New creates a new in-memory index for vectors of the given dimension.
func New(dimension int, optFns ...func(o *Options)) (*Index, error) {
	opts := Options{Dimension: dimension, Mode: model.ModeExternal}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension <= 0 {
		return nil, &index.ErrDimensionMismatch{Expected: 1, Actual: opts.Dimension}
	}

	idx := &Index{opts: opts}
	idx.state.Store(&state{
		byID:     make(map[model.SongID]uint32),
		excluded: roaring.New(),
	})
	return idx, nil
}

// ForMode creates an index sized for the given feature mode.
func ForMode(mode model.Mode) (*Index, error) {
	return New(mode.Dimension(), func(o *Options) { o.Mode = mode })
}

// Put registers or replaces a song record (last-writer-wins).
func (idx *Index) Put(ctx context.Context, rec model.SongRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := rec.Embedding.Validate(); err != nil {
		return err
	}
	if got := rec.Embedding.Dimension(); got != idx.opts.Dimension {
		return &index.ErrDimensionMismatch{Expected: idx.opts.Dimension, Actual: got}
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	next := idx.state.Load().clone()

	r, ok := next.byID[rec.SongID]
	if !ok {
		r = uint32(len(next.rows))
		next.rows = append(next.rows, row{})
		next.byID[rec.SongID] = r
	}
	next.rows[r] = row{
		songID: rec.SongID,
		mode:   rec.Embedding.Mode,
		vector: rec.Embedding.Clone().Vector,
	}
	if rec.ExcludedFromSearch {
		next.excluded.Add(r)
	} else {
		next.excluded.Remove(r)
	}

	idx.state.Store(next)
	return nil
}

// Get returns the stored record for the song id.
func (idx *Index) Get(ctx context.Context, id model.SongID) (model.SongRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.SongRecord{}, err
	}

	st := idx.state.Load()
	r, ok := st.byID[id]
	if !ok {
		return model.SongRecord{}, &index.ErrSongNotFound{SongID: id}
	}

	rw := st.rows[r]
	return model.SongRecord{
		SongID:             rw.songID,
		Embedding:          model.NewEmbedding(rw.mode, rw.vector),
		ExcludedFromSearch: st.excluded.Contains(r),
	}, nil
}

// SetExcluded toggles the search opt-out flag.
func (idx *Index) SetExcluded(ctx context.Context, id model.SongID, excluded bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	cur := idx.state.Load()
	r, ok := cur.byID[id]
	if !ok {
		return &index.ErrSongNotFound{SongID: id}
	}
	if cur.excluded.Contains(r) == excluded {
		return nil
	}

	next := cur.clone()
	if excluded {
		next.excluded.Add(r)
	} else {
		next.excluded.Remove(r)
	}
	idx.state.Store(next)
	return nil
}

// Query performs a brute-force nearest-neighbor search. Reads are
// lock-free against the current state snapshot.
func (idx *Index) Query(ctx context.Context, q []float32, k int, metric distance.Metric, optFns ...func(o *index.QueryOptions)) ([]model.SimilarityMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := index.ValidateK(k); err != nil {
		return nil, err
	}
	if len(q) != idx.opts.Dimension {
		return nil, &index.ErrDimensionMismatch{Expected: idx.opts.Dimension, Actual: len(q)}
	}

	opts := index.DefaultQueryOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	distFn, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}

	st := idx.state.Load()
	top := queue.NewTopK(k)

	for r := range st.rows {
		if st.excluded.Contains(uint32(r)) {
			continue
		}
		rw := &st.rows[r]
		if !opts.Admits(rw.songID) {
			continue
		}
		d := distFn(q, rw.vector)
		if !opts.WithinDistance(d) {
			continue
		}
		top.Offer(rw.songID, d)
	}

	items := top.Drain()
	matches := make([]model.SimilarityMatch, len(items))
	for i, it := range items {
		matches[i] = model.SimilarityMatch{SongID: it.SongID, Distance: it.Distance}
	}
	return matches, nil
}

// Count returns the number of stored records, including excluded ones.
func (idx *Index) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(idx.state.Load().rows), nil
}

// Dump returns a copy of every stored record. Used by snapshot
// persistence; ordering follows insertion order.
func (idx *Index) Dump(ctx context.Context) ([]model.SongRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st := idx.state.Load()
	recs := make([]model.SongRecord, 0, len(st.rows))
	for r := range st.rows {
		rw := &st.rows[r]
		recs = append(recs, model.SongRecord{
			SongID:             rw.songID,
			Embedding:          model.NewEmbedding(rw.mode, rw.vector),
			ExcludedFromSearch: st.excluded.Contains(uint32(r)),
		})
	}
	return recs, nil
}

// Dimension returns the fixed vector dimensionality of the index.
func (idx *Index) Dimension() int { return idx.opts.Dimension }

// Mode returns the feature mode the index was created for.
func (idx *Index) Mode() model.Mode { return idx.opts.Mode }
