package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/melodex/distance"
	"github.com/hupe1980/melodex/index"
	"github.com/hupe1980/melodex/model"
)

// Compile-time check to ensure SegmentIndex satisfies the interface.
var _ index.SegmentIndex = (*SegmentIndex)(nil)

type segRow struct {
	ref    model.SegmentRef
	mode   model.Mode
	vector []float32
}

type segState struct {
	rows   []segRow
	byRef  map[model.SegmentRef]uint32
	bySong map[model.SongID][]uint32
}

func (s *segState) clone() *segState {
	rows := make([]segRow, len(s.rows))
	copy(rows, s.rows)

	byRef := make(map[model.SegmentRef]uint32, len(s.byRef))
	for ref, r := range s.byRef {
		byRef[ref] = r
	}

	bySong := make(map[model.SongID][]uint32, len(s.bySong))
	for id, rs := range s.bySong {
		cp := make([]uint32, len(rs))
		copy(cp, rs)
		bySong[id] = cp
	}

	return &segState{rows: rows, byRef: byRef, bySong: bySong}
}

// SegmentIndex is an in-memory segment-level vector index keyed by
// (song id, segment index).
type SegmentIndex struct {
	state     atomic.Pointer[segState]
	writeMu   sync.Mutex
	dimension int
}

// NewSegmentIndex creates a segment index for vectors of the given dimension.
func NewSegmentIndex(dimension int) (*SegmentIndex, error) {
	if dimension <= 0 {
		return nil, &index.ErrDimensionMismatch{Expected: 1, Actual: dimension}
	}

	si := &SegmentIndex{dimension: dimension}
	si.state.Store(&segState{
		byRef:  make(map[model.SegmentRef]uint32),
		bySong: make(map[model.SongID][]uint32),
	})
	return si, nil
}

// PutSegments registers or replaces segment embeddings in one write.
func (si *SegmentIndex) PutSegments(ctx context.Context, segs []model.SegmentEmbedding) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(segs) == 0 {
		return nil
	}
	for i := range segs {
		if err := segs[i].Embedding.Validate(); err != nil {
			return err
		}
		if got := segs[i].Embedding.Dimension(); got != si.dimension {
			return &index.ErrDimensionMismatch{Expected: si.dimension, Actual: got}
		}
	}

	si.writeMu.Lock()
	defer si.writeMu.Unlock()

	next := si.state.Load().clone()
	for i := range segs {
		seg := &segs[i]
		ref := seg.Ref()

		r, ok := next.byRef[ref]
		if !ok {
			r = uint32(len(next.rows))
			next.rows = append(next.rows, segRow{})
			next.byRef[ref] = r
			next.bySong[seg.SongID] = append(next.bySong[seg.SongID], r)
		}
		next.rows[r] = segRow{
			ref:    ref,
			mode:   seg.Embedding.Mode,
			vector: seg.Embedding.Clone().Vector,
		}
	}

	si.state.Store(next)
	return nil
}

// SegmentsOf returns all segments of a song ordered by segment index.
func (si *SegmentIndex) SegmentsOf(ctx context.Context, id model.SongID) ([]model.SegmentEmbedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st := si.state.Load()
	rows := st.bySong[id]

	segs := make([]model.SegmentEmbedding, 0, len(rows))
	for _, r := range rows {
		rw := &st.rows[r]
		segs = append(segs, model.SegmentEmbedding{
			SongID:       rw.ref.SongID,
			SegmentIndex: rw.ref.SegmentIndex,
			Embedding:    model.NewEmbedding(rw.mode, rw.vector),
		})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].SegmentIndex < segs[j].SegmentIndex })
	return segs, nil
}

// QuerySegments performs a brute-force nearest-neighbor search over all
// stored segments.
func (si *SegmentIndex) QuerySegments(ctx context.Context, q []float32, k int, metric distance.Metric, optFns ...func(o *index.QueryOptions)) ([]index.SegmentMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := index.ValidateK(k); err != nil {
		return nil, err
	}
	if len(q) != si.dimension {
		return nil, &index.ErrDimensionMismatch{Expected: si.dimension, Actual: len(q)}
	}

	opts := index.DefaultQueryOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	distFn, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}

	st := si.state.Load()

	// Ranked by (distance, ref) through the same bounded heap used by the
	// song index; the ref string gives the deterministic tie-break.
	type cand struct {
		ref  model.SegmentRef
		dist float32
	}
	var best []cand

	for r := range st.rows {
		rw := &st.rows[r]
		if !opts.Admits(rw.ref.SongID) {
			continue
		}
		d := distFn(q, rw.vector)
		if !opts.WithinDistance(d) {
			continue
		}
		best = append(best, cand{ref: rw.ref, dist: d})
	}

	sort.Slice(best, func(i, j int) bool {
		if best[i].dist != best[j].dist {
			return best[i].dist < best[j].dist
		}
		if best[i].ref.SongID != best[j].ref.SongID {
			return best[i].ref.SongID < best[j].ref.SongID
		}
		return best[i].ref.SegmentIndex < best[j].ref.SegmentIndex
	})
	if len(best) > k {
		best = best[:k]
	}

	matches := make([]index.SegmentMatch, len(best))
	for i, c := range best {
		matches[i] = index.SegmentMatch{Ref: c.ref, Distance: c.dist}
	}
	return matches, nil
}

// DeleteSegments removes all segments of a song.
func (si *SegmentIndex) DeleteSegments(ctx context.Context, id model.SongID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	si.writeMu.Lock()
	defer si.writeMu.Unlock()

	cur := si.state.Load()
	rows, ok := cur.bySong[id]
	if !ok {
		return nil
	}

	// Rebuild without the deleted song; row numbers are compacted so the
	// byRef/bySong maps stay dense.
	drop := make(map[uint32]struct{}, len(rows))
	for _, r := range rows {
		drop[r] = struct{}{}
	}

	next := &segState{
		byRef:  make(map[model.SegmentRef]uint32, len(cur.byRef)),
		bySong: make(map[model.SongID][]uint32, len(cur.bySong)),
	}
	for r := range cur.rows {
		if _, gone := drop[uint32(r)]; gone {
			continue
		}
		rw := cur.rows[r]
		nr := uint32(len(next.rows))
		next.rows = append(next.rows, rw)
		next.byRef[rw.ref] = nr
		next.bySong[rw.ref.SongID] = append(next.bySong[rw.ref.SongID], nr)
	}

	si.state.Store(next)
	return nil
}

// Dump returns a copy of every stored segment embedding, ordered by
// insertion. Used by snapshot persistence.
func (si *SegmentIndex) Dump(ctx context.Context) ([]model.SegmentEmbedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st := si.state.Load()
	segs := make([]model.SegmentEmbedding, 0, len(st.rows))
	for r := range st.rows {
		rw := &st.rows[r]
		segs = append(segs, model.SegmentEmbedding{
			SongID:       rw.ref.SongID,
			SegmentIndex: rw.ref.SegmentIndex,
			Embedding:    model.NewEmbedding(rw.mode, rw.vector),
		})
	}
	return segs, nil
}

// Dimension returns the fixed vector dimensionality of the index.
func (si *SegmentIndex) Dimension() int { return si.dimension }
