// Package segment reconciles fine-grained per-segment similarity into a
// single per-song relevance score. Segment-level nearest-neighbor search
// returns many hits per candidate; raw distance alone under-represents how
// much of the query song a candidate actually resembles, so the scorer
// rewards breadth of matching (coverage) over raw match volume.
package segment

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/hupe1980/melodex/distance"
	"github.com/hupe1980/melodex/index"
	"github.com/hupe1980/melodex/model"
)

// InsufficientSegmentsError indicates the query song has no usable
// segments left after trimming.
type InsufficientSegmentsError struct {
	SongID model.SongID
}

func (e *InsufficientSegmentsError) Error() string {
	return fmt.Sprintf("no usable segments for song %s", e.SongID)
}

// Options contains configuration options for the scorer.
type Options struct {
	// TopKPerSegment bounds the matches requested per query segment.
	TopKPerSegment int

	// MaxQuerySeconds caps the usable query window after trimming.
	MaxQuerySeconds float64

	// SkipStartSeconds and SkipEndSeconds trim the intro and outro;
	// they are typically less characteristic of the song.
	SkipStartSeconds float64
	SkipEndSeconds   float64

	// DistanceMax drops segment matches above the threshold. NaN
	// disables the cutoff.
	DistanceMax float32

	// SegmentSeconds is the fixed window width segments were extracted
	// with. Trimming and capping are expressed in whole segments.
	SegmentSeconds float64

	// CoverageWeight and VolumeWeight shape the score. CoverageWeight
	// should stay above VolumeWeight so a song that briefly resembles
	// many query segments outranks one that intensely matches only a few.
	CoverageWeight float64
	VolumeWeight   float64

	// HitCap saturates the volume term.
	HitCap int

	// Metric selects the distance function for segment queries.
	Metric distance.Metric
}

// DefaultOptions contains the default scorer configuration.
var DefaultOptions = Options{
	TopKPerSegment:   10,
	MaxQuerySeconds:  60,
	SkipStartSeconds: 10,
	SkipEndSeconds:   10,
	DistanceMax:      0.35,
	SegmentSeconds:   5,
	CoverageWeight:   3,
	VolumeWeight:     1,
	HitCap:           100,
	Metric:           distance.MetricCosine,
}

// Scorer turns per-segment matches into one relevance score per
// candidate song.
type Scorer struct {
	segments index.SegmentIndex
	opts     Options
}

// NewScorer creates a new scorer over the segment index.
func NewScorer(segments index.SegmentIndex, optFns ...func(o *Options)) *Scorer {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Scorer{segments: segments, opts: opts}
}

// Score ranks every candidate song by how broadly and how often its
// segments match the query song's segments. Candidates are returned in
// descending score order; an empty result means nothing matched, which
// is not an error.
func (s *Scorer) Score(ctx context.Context, querySongID model.SongID) ([]model.SegmentScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	segs, err := s.segments.SegmentsOf(ctx, querySongID)
	if err != nil {
		return nil, err
	}

	usable := s.trim(segs)
	if len(usable) == 0 {
		return nil, &InsufficientSegmentsError{SongID: querySongID}
	}

	type tally struct {
		hits     int
		segments map[int]struct{} // distinct query segments with >=1 match
	}
	tallies := make(map[model.SongID]*tally)

	for _, qs := range usable {
		matches, err := s.segments.QuerySegments(ctx, qs.Embedding.Vector, s.opts.TopKPerSegment, s.opts.Metric,
			func(o *index.QueryOptions) {
				o.ExcludeSongID = querySongID
				o.MaxDistance = s.opts.DistanceMax
			})
		if err != nil {
			return nil, err
		}

		for _, m := range matches {
			tl := tallies[m.Ref.SongID]
			if tl == nil {
				tl = &tally{segments: make(map[int]struct{})}
				tallies[m.Ref.SongID] = tl
			}
			tl.hits++
			tl.segments[qs.SegmentIndex] = struct{}{}
		}
	}

	considered := len(usable)
	maxHits := considered * s.opts.TopKPerSegment

	scores := make([]model.SegmentScore, 0, len(tallies))
	for id, tl := range tallies {
		coverage := float64(len(tl.segments)) / float64(considered)
		scores = append(scores, model.SegmentScore{
			SongID:   id,
			Score:    s.scoreValue(coverage, tl.hits),
			HitCount: tl.hits,
			Coverage: coverage,
			Density:  float64(tl.hits) / float64(maxHits),
		})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		if scores[i].Coverage != scores[j].Coverage {
			return scores[i].Coverage > scores[j].Coverage
		}
		return scores[i].SongID < scores[j].SongID
	})
	return scores, nil
}

// trim drops the intro/outro segments and caps the window. The exact
// weights elsewhere are tunable policy; trimming in whole segments keeps
// the arithmetic exact.
func (s *Scorer) trim(segs []model.SegmentEmbedding) []model.SegmentEmbedding {
	skipStart := int(s.opts.SkipStartSeconds / s.opts.SegmentSeconds)
	skipEnd := int(s.opts.SkipEndSeconds / s.opts.SegmentSeconds)

	if skipStart+skipEnd >= len(segs) {
		return nil
	}
	usable := segs[skipStart : len(segs)-skipEnd]

	if s.opts.MaxQuerySeconds > 0 {
		maxSegs := int(s.opts.MaxQuerySeconds / s.opts.SegmentSeconds)
		if maxSegs > 0 && len(usable) > maxSegs {
			usable = usable[:maxSegs]
		}
	}
	return usable
}

// scoreValue is monotonically increasing in both coverage and hit count.
func (s *Scorer) scoreValue(coverage float64, hitCount int) float64 {
	volume := math.Min(float64(hitCount), float64(s.opts.HitCap))
	return s.opts.CoverageWeight*coverage*100 + s.opts.VolumeWeight*volume
}
