package melodex

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/hupe1980/melodex/blobstore"
	"github.com/hupe1980/melodex/chain"
	"github.com/hupe1980/melodex/distance"
	"github.com/hupe1980/melodex/feature"
	"github.com/hupe1980/melodex/index"
	"github.com/hupe1980/melodex/index/memory"
	"github.com/hupe1980/melodex/model"
	"github.com/hupe1980/melodex/register"
	"github.com/hupe1980/melodex/segment"
	"github.com/hupe1980/melodex/snapshot"
)

// Engine is the assembled music-similarity stack: one feature extractor,
// one song-level index per feature mode, one segment index with its
// scorer, and a batch registrar over all of them.
//
// All operations are safe for concurrent use.
type Engine struct {
	extractor *feature.Extractor
	modes     []model.Mode // index iteration order, as configured
	indexes   map[model.Mode]*memory.Index
	segments  *memory.SegmentIndex
	scorer    *segment.Scorer
	registrar *register.Registrar
	metric    distance.Metric
	logger    *Logger
	metrics   MetricsCollector

	chainOptFns    []func(*chain.Options)
	snapshotOptFns []func(*snapshot.Options)
}

// New creates a new engine. The default configuration extracts and
// indexes all three feature modes and scores segments in full mode.
func New(optFns ...Option) (*Engine, error) {
	o := applyOptions(optFns)

	if len(o.modes) == 0 {
		return nil, fmt.Errorf("at least one feature mode is required")
	}
	if o.segmentMode.Dimension() == 0 {
		return nil, fmt.Errorf("segment mode %s has no fixed dimension", o.segmentMode)
	}

	extractor := feature.New(o.extractorOptFns...)

	indexes := make(map[model.Mode]*memory.Index, len(o.modes))
	modeIndexes := make([]register.ModeIndex, 0, len(o.modes))
	for _, mode := range o.modes {
		if _, dup := indexes[mode]; dup {
			return nil, fmt.Errorf("duplicate feature mode %s", mode)
		}
		idx, err := memory.ForMode(mode)
		if err != nil {
			return nil, translateError(err)
		}
		indexes[mode] = idx
		modeIndexes = append(modeIndexes, register.ModeIndex{Mode: mode, Index: idx})
	}

	segments, err := memory.NewSegmentIndex(o.segmentMode.Dimension())
	if err != nil {
		return nil, translateError(err)
	}

	// The engine-level metric seeds the scorer; explicit scorer options
	// still win.
	scorerOptFns := append([]func(*segment.Options){func(so *segment.Options) {
		so.Metric = o.metric
	}}, o.scorerOptFns...)
	scorer := segment.NewScorer(segments, scorerOptFns...)

	registrarOptFns := append([]func(*register.Options){func(ro *register.Options) {
		ro.SegmentMode = o.segmentMode
	}}, o.registrarOptFns...)
	registrar := register.New(extractor, modeIndexes, segments, registrarOptFns...)

	return &Engine{
		extractor:      extractor,
		modes:          o.modes,
		indexes:        indexes,
		segments:       segments,
		scorer:         scorer,
		registrar:      registrar,
		metric:         o.metric,
		logger:         o.logger,
		metrics:        o.metricsCollector,
		chainOptFns:    o.chainOptFns,
		snapshotOptFns: o.snapshotOptFns,
	}, nil
}

// Extractor returns the engine's feature extractor for standalone use.
func (e *Engine) Extractor() *feature.Extractor { return e.extractor }

// SegmentIndex returns the engine's segment index.
func (e *Engine) SegmentIndex() index.SegmentIndex { return e.segments }

// Index returns the song-level index for the mode, or nil when the
// engine does not maintain one.
func (e *Engine) Index(mode model.Mode) index.Index {
	idx, ok := e.indexes[mode]
	if !ok {
		return nil
	}
	return idx
}

// Register extracts and indexes a single audio file. The song id is the
// file name without extension.
func (e *Engine) Register(ctx context.Context, audioPath string) error {
	summary, err := e.RegisterBatch(ctx, []string{audioPath})
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return &summary.Failures[0]
	}
	return nil
}

// RegisterBatch extracts and indexes the audio files on a bounded worker
// pool. Per-file failures land in the summary; the returned error is
// reserved for pool-level failures such as cancellation.
func (e *Engine) RegisterBatch(ctx context.Context, audioPaths []string) (*register.Summary, error) {
	start := time.Now()

	jobs := make([]register.Job, len(audioPaths))
	for i, p := range audioPaths {
		jobs[i] = register.JobFromPath(p)
	}

	summary, err := e.registrar.Register(ctx, jobs)
	if err != nil {
		e.metrics.RecordRegister(len(jobs), len(jobs), time.Since(start))
		return nil, err
	}

	e.metrics.RecordRegister(len(jobs), summary.Failed, time.Since(start))
	e.logger.LogRegister(ctx, len(jobs), summary.Failed)
	return summary, nil
}

// PutSong inserts or replaces a song record in the index matching the
// embedding's mode. Use this for externally produced embeddings.
func (e *Engine) PutSong(ctx context.Context, rec model.SongRecord) error {
	idx, ok := e.indexes[rec.Embedding.Mode]
	if !ok {
		return fmt.Errorf("no index for mode %s", rec.Embedding.Mode)
	}
	return translateError(idx.Put(ctx, rec))
}

// Get returns the stored record for the song in the given mode.
func (e *Engine) Get(ctx context.Context, songID model.SongID, mode model.Mode) (model.SongRecord, error) {
	idx, ok := e.indexes[mode]
	if !ok {
		return model.SongRecord{}, fmt.Errorf("no index for mode %s", mode)
	}
	rec, err := idx.Get(ctx, songID)
	return rec, translateError(err)
}

// SetExcluded toggles the search opt-out flag on every index that knows
// the song. A song unknown to all indexes fails with ErrNotFound.
func (e *Engine) SetExcluded(ctx context.Context, songID model.SongID, excluded bool) error {
	found := false
	for _, mode := range e.modes {
		err := e.indexes[mode].SetExcluded(ctx, songID, excluded)
		if err != nil {
			var snf *index.ErrSongNotFound
			if errors.As(err, &snf) {
				continue
			}
			return translateError(err)
		}
		found = true
	}
	if !found {
		return translateError(&index.ErrSongNotFound{SongID: songID})
	}
	return nil
}

// Similar returns the k songs nearest to the given song in the mode's
// feature space. The song itself is never part of the result.
func (e *Engine) Similar(ctx context.Context, songID model.SongID, k int, mode model.Mode) ([]model.SimilarityMatch, error) {
	start := time.Now()

	matches, err := e.similar(ctx, songID, k, mode)

	e.metrics.RecordSimilar(k, time.Since(start), err)
	e.logger.LogSimilar(ctx, songID, k, len(matches), err)
	return matches, err
}

func (e *Engine) similar(ctx context.Context, songID model.SongID, k int, mode model.Mode) ([]model.SimilarityMatch, error) {
	idx, ok := e.indexes[mode]
	if !ok {
		return nil, fmt.Errorf("no index for mode %s", mode)
	}

	rec, err := idx.Get(ctx, songID)
	if err != nil {
		return nil, translateError(err)
	}

	matches, err := idx.Query(ctx, rec.Embedding.Vector, k, e.metric, func(o *index.QueryOptions) {
		o.ExcludeSongID = songID
	})
	return matches, translateError(err)
}

// SegmentScore ranks every candidate song by how broadly and how often
// its segments match the query song's segments.
func (e *Engine) SegmentScore(ctx context.Context, songID model.SongID) ([]model.SegmentScore, error) {
	start := time.Now()

	scores, err := e.scorer.Score(ctx, songID)

	e.metrics.RecordSegmentScore(time.Since(start), err)
	e.logger.LogSegmentScore(ctx, songID, len(scores), err)
	return scores, err
}

// Chain walks the song-level indexes greedily from the seed, producing
// up to n distinct songs. All configured modes contribute candidates;
// the best per-song distance wins. Filters admit or reject candidates
// on top of the non-repetition rule.
func (e *Engine) Chain(ctx context.Context, seed model.SongID, n int, filters ...chain.Predicate) (model.ChainResult, error) {
	indexes := make([]index.Index, len(e.modes))
	for i, mode := range e.modes {
		indexes[i] = e.indexes[mode]
	}
	source := chain.NewMultiIndexSource(e.metric, indexes...)
	return e.walk(ctx, source, seed, n, filters)
}

// SegmentChain walks from the seed using segment-level relevance instead
// of whole-song distance. Each step's Distance carries the negated
// segment score.
func (e *Engine) SegmentChain(ctx context.Context, seed model.SongID, n int, filters ...chain.Predicate) (model.ChainResult, error) {
	source := chain.NewScorerSource(e.scorer, e.segments)
	return e.walk(ctx, source, seed, n, filters)
}

func (e *Engine) walk(ctx context.Context, source chain.Source, seed model.SongID, n int, filters []chain.Predicate) (model.ChainResult, error) {
	start := time.Now()

	optFns := make([]func(*chain.Options), 0, len(e.chainOptFns)+1)
	optFns = append(optFns, e.chainOptFns...)
	optFns = append(optFns, func(o *chain.Options) {
		o.Filters = append(o.Filters, filters...)
	})
	result, err := chain.New(source, optFns...).Chain(ctx, seed, n)

	e.metrics.RecordChain(len(result), time.Since(start), err)
	e.logger.LogChain(ctx, seed, n, len(result), err)
	return result, err
}

// SaveSnapshot writes one blob per mode index plus one for the segment
// index under the prefix.
func (e *Engine) SaveSnapshot(ctx context.Context, store blobstore.Store, prefix string) error {
	start := time.Now()
	err := e.saveSnapshot(ctx, store, prefix)

	e.metrics.RecordSnapshot(time.Since(start), err)
	e.logger.LogSnapshot(ctx, prefix, err)
	return err
}

func (e *Engine) saveSnapshot(ctx context.Context, store blobstore.Store, prefix string) error {
	for _, mode := range e.modes {
		if err := snapshot.Save(ctx, store, path.Join(prefix, mode.String()), e.indexes[mode], nil, e.snapshotOptFns...); err != nil {
			return err
		}
	}
	return snapshot.Save(ctx, store, path.Join(prefix, "segments"), nil, e.segments, e.snapshotOptFns...)
}

// LoadSnapshot restores the indexes from blobs under the prefix. Modes
// without a blob are skipped; a prefix with no blobs at all fails with
// ErrNotFound.
func (e *Engine) LoadSnapshot(ctx context.Context, store blobstore.Store, prefix string) error {
	start := time.Now()
	err := e.loadSnapshot(ctx, store, prefix)

	e.metrics.RecordSnapshot(time.Since(start), err)
	e.logger.LogSnapshot(ctx, prefix, err)
	return err
}

func (e *Engine) loadSnapshot(ctx context.Context, store blobstore.Store, prefix string) error {
	loaded := 0
	for _, mode := range e.modes {
		err := snapshot.Load(ctx, store, path.Join(prefix, mode.String()), e.indexes[mode], nil)
		if errors.Is(err, blobstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		loaded++
	}

	err := snapshot.Load(ctx, store, path.Join(prefix, "segments"), nil, e.segments)
	if errors.Is(err, blobstore.ErrNotFound) {
		if loaded == 0 {
			return fmt.Errorf("%w: no snapshot under %s", ErrNotFound, prefix)
		}
		return nil
	}
	return err
}
