package chain

import (
	"context"
	"errors"
	"sort"

	"github.com/hupe1980/melodex/distance"
	"github.com/hupe1980/melodex/index"
	"github.com/hupe1980/melodex/model"
	"github.com/hupe1980/melodex/segment"
)

// Source yields ranked next-hop candidates relative to the current song.
// The admit predicate must be applied before ranking is finalized.
type Source interface {
	// Candidates returns up to k admitted candidates, best first.
	Candidates(ctx context.Context, current model.SongID, k int, admit func(model.SongID) bool) ([]Candidate, error)

	// Contains reports whether the song is known to the source.
	Contains(ctx context.Context, id model.SongID) (bool, error)
}

// Compile-time checks to ensure the sources satisfy the interface.
var (
	_ Source = (*IndexSource)(nil)
	_ Source = (*MultiIndexSource)(nil)
	_ Source = (*ScorerSource)(nil)
)

// IndexSource walks a single song-level vector index.
type IndexSource struct {
	index  index.Index
	metric distance.Metric
}

// NewIndexSource creates a source over the index using the metric.
func NewIndexSource(idx index.Index, metric distance.Metric) *IndexSource {
	return &IndexSource{index: idx, metric: metric}
}

// Candidates implements Source.
func (s *IndexSource) Candidates(ctx context.Context, current model.SongID, k int, admit func(model.SongID) bool) ([]Candidate, error) {
	rec, err := s.index.Get(ctx, current)
	if err != nil {
		return nil, err
	}

	matches, err := s.index.Query(ctx, rec.Embedding.Vector, k, s.metric, func(o *index.QueryOptions) {
		o.ExcludeSongID = current
		o.Filter = admit
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, len(matches))
	for i, m := range matches {
		candidates[i] = Candidate{SongID: m.SongID, Distance: m.Distance}
	}
	return candidates, nil
}

// Contains implements Source.
func (s *IndexSource) Contains(ctx context.Context, id model.SongID) (bool, error) {
	_, err := s.index.Get(ctx, id)
	if err != nil {
		var notFound *index.ErrSongNotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MultiIndexSource fans one step out over several song-level indexes,
// typically one per feature mode, and merges the results. Distances from
// different indexes are local measures of different feature spaces; the
// merge keeps the smallest per song, which favors whichever space finds
// the candidate closest.
type MultiIndexSource struct {
	sources []*IndexSource
}

// NewMultiIndexSource creates a fan-out source. All indexes are queried
// with the same metric.
func NewMultiIndexSource(metric distance.Metric, indexes ...index.Index) *MultiIndexSource {
	sources := make([]*IndexSource, len(indexes))
	for i, idx := range indexes {
		sources[i] = NewIndexSource(idx, metric)
	}
	return &MultiIndexSource{sources: sources}
}

// Candidates implements Source. Indexes that do not know the current
// song are skipped rather than failing the step.
func (s *MultiIndexSource) Candidates(ctx context.Context, current model.SongID, k int, admit func(model.SongID) bool) ([]Candidate, error) {
	best := make(map[model.SongID]float32)

	for _, src := range s.sources {
		ok, err := src.Contains(ctx, current)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		candidates, err := src.Candidates(ctx, current, k, admit)
		if err != nil {
			return nil, err
		}
		for _, c := range candidates {
			if d, seen := best[c.SongID]; !seen || c.Distance < d {
				best[c.SongID] = c.Distance
			}
		}
	}

	merged := make([]Candidate, 0, len(best))
	for id, d := range best {
		merged = append(merged, Candidate{SongID: id, Distance: d})
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Distance != merged[j].Distance {
			return merged[i].Distance < merged[j].Distance
		}
		return merged[i].SongID < merged[j].SongID
	})
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

// Contains implements Source.
func (s *MultiIndexSource) Contains(ctx context.Context, id model.SongID) (bool, error) {
	for _, src := range s.sources {
		ok, err := src.Contains(ctx, id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// ScorerSource ranks candidates by segment-level relevance instead of
// whole-song distance. Candidate.Distance carries the negated score so
// the lower-is-better convention holds.
type ScorerSource struct {
	scorer   *segment.Scorer
	segments index.SegmentIndex
}

// NewScorerSource creates a source over the scorer. The segment index is
// used for seed existence checks.
func NewScorerSource(scorer *segment.Scorer, segments index.SegmentIndex) *ScorerSource {
	return &ScorerSource{scorer: scorer, segments: segments}
}

// Candidates implements Source. A current song without usable segments
// ends the walk (empty candidate list) instead of failing it.
func (s *ScorerSource) Candidates(ctx context.Context, current model.SongID, k int, admit func(model.SongID) bool) ([]Candidate, error) {
	scores, err := s.scorer.Score(ctx, current)
	if err != nil {
		var insufficient *segment.InsufficientSegmentsError
		if errors.As(err, &insufficient) {
			return nil, nil
		}
		return nil, err
	}

	candidates := make([]Candidate, 0, k)
	for _, sc := range scores {
		if !admit(sc.SongID) {
			continue
		}
		candidates = append(candidates, Candidate{SongID: sc.SongID, Distance: float32(-sc.Score)})
		if len(candidates) == k {
			break
		}
	}
	return candidates, nil
}

// Contains implements Source.
func (s *ScorerSource) Contains(ctx context.Context, id model.SongID) (bool, error) {
	segs, err := s.segments.SegmentsOf(ctx, id)
	if err != nil {
		return false, err
	}
	return len(segs) > 0, nil
}
