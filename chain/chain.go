// Package chain produces an ordered listening path of distinct songs.
// Starting from a seed, each step moves to the best not-yet-visited
// candidate relative to the current song. The walk is greedy by design:
// a global optimum is traded away for predictable, cheap steps.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/melodex/model"
)

// ErrSeedNotFound is returned when the seed song is absent from the
// candidate source.
var ErrSeedNotFound = errors.New("seed song not found")

// Candidate is one ranked next-hop option. Distance is the source's
// local measure (query distance or negated segment score); values from
// different steps must not be compared or summed.
type Candidate struct {
	SongID   model.SongID
	Distance float32
}

// Predicate admits or rejects a candidate song. Predicates run before
// rank order is consulted, so they never reshuffle surviving candidates.
type Predicate func(model.SongID) bool

// Policy picks the next hop from the ranked surviving candidates.
type Policy interface {
	Pick(candidates []Candidate) (Candidate, bool)
}

// GreedyNearest takes the top-ranked candidate. This is the default
// walk behavior.
type GreedyNearest struct{}

// Pick implements Policy.
func (GreedyNearest) Pick(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	return candidates[0], true
}

// Options contains configuration options for the engine.
type Options struct {
	// Policy selects among ranked candidates. Defaults to GreedyNearest.
	Policy Policy

	// Filters are external admission rules (source collection, tempo
	// range, ...) applied on top of the visited set.
	Filters []Predicate

	// CandidateSlack widens each step's query beyond the visited count
	// so enough unvisited candidates survive.
	CandidateSlack int
}

// DefaultOptions contains the default engine configuration.
var DefaultOptions = Options{
	Policy:         GreedyNearest{},
	CandidateSlack: 10,
}

// Engine walks a candidate source from a seed song.
type Engine struct {
	source Source
	opts   Options
}

// New creates a new chain engine over the candidate source.
func New(source Source, optFns ...func(o *Options)) *Engine {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Policy == nil {
		opts.Policy = GreedyNearest{}
	}
	if opts.CandidateSlack < 1 {
		opts.CandidateSlack = 1
	}
	return &Engine{source: source, opts: opts}
}

// Chain returns up to n distinct songs starting with the seed. A result
// shorter than n means the candidate set was exhausted; the partial
// sequence is valid and is never padded.
func (e *Engine) Chain(ctx context.Context, seed model.SongID, n int) (model.ChainResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, fmt.Errorf("chain length must be positive, got %d", n)
	}

	ok, err := e.source.Contains(ctx, seed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSeedNotFound, seed)
	}

	visited := map[model.SongID]struct{}{seed: {}}
	result := model.ChainResult{{Seq: 0, SongID: seed, Distance: 0}}
	current := seed

	for len(result) < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		admit := func(id model.SongID) bool {
			if _, seen := visited[id]; seen {
				return false
			}
			for _, f := range e.opts.Filters {
				if !f(id) {
					return false
				}
			}
			return true
		}

		k := len(visited) + e.opts.CandidateSlack
		candidates, err := e.source.Candidates(ctx, current, k, admit)
		if err != nil {
			return nil, err
		}

		next, ok := e.opts.Policy.Pick(candidates)
		if !ok {
			break // exhausted, return the partial walk
		}

		result = append(result, model.ChainStep{
			Seq:      len(result),
			SongID:   next.SongID,
			Distance: next.Distance,
		})
		visited[next.SongID] = struct{}{}
		current = next.SongID
	}
	return result, nil
}
