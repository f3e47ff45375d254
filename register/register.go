// Package register runs batch song registration: extract embeddings from
// audio files on a bounded worker pool and write them into the song and
// segment indexes. Extraction is CPU-bound and embarrassingly parallel;
// one bad file never aborts the batch.
package register

import (
	"context"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/hupe1980/melodex/index"
	"github.com/hupe1980/melodex/model"
)

// Extractor is the embedding producer consumed by the registrar.
// *feature.Extractor satisfies it.
type Extractor interface {
	Extract(ctx context.Context, path string, durationSeconds float64, mode model.Mode) (model.Embedding, error)
	ExtractSegments(ctx context.Context, path string, segmentSeconds float64, mode model.Mode) ([]model.Embedding, error)
}

// Job is one audio file to register.
type Job struct {
	SongID model.SongID
	Path   string
}

// JobFromPath derives the song id from the file name without extension.
func JobFromPath(path string) Job {
	base := filepath.Base(path)
	return Job{
		SongID: model.SongID(strings.TrimSuffix(base, filepath.Ext(base))),
		Path:   path,
	}
}

// FileError is one failed registration.
type FileError struct {
	SongID model.SongID
	Path   string
	Err    error
}

func (e *FileError) Error() string { return string(e.SongID) + ": " + e.Err.Error() }

func (e *FileError) Unwrap() error { return e.Err }

// Summary reports the outcome of a batch. Failures are sorted by song id.
type Summary struct {
	Succeeded int
	Failed    int
	Failures  []FileError
}

// ModeIndex pairs a song-level index with the feature mode it stores.
type ModeIndex struct {
	Mode  model.Mode
	Index index.Index
}

// Options contains configuration options for the registrar.
type Options struct {
	// Concurrency bounds the number of files processed at once.
	// Defaults to the CPU count.
	Concurrency int

	// DurationSeconds caps the whole-song analysis window. 0 analyzes
	// the full track. The value must be uniform across a corpus.
	DurationSeconds float64

	// SegmentSeconds is the segment extraction window. Ignored when no
	// segment index is attached.
	SegmentSeconds float64

	// SegmentMode is the feature mode used for segment embeddings.
	SegmentMode model.Mode

	// Limiter paces registrations against remote stores. Nil disables
	// pacing.
	Limiter *rate.Limiter
}

// DefaultOptions contains the default registrar configuration.
var DefaultOptions = Options{
	Concurrency:     runtime.NumCPU(),
	DurationSeconds: 0,
	SegmentSeconds:  5,
	SegmentMode:     model.ModeFull,
}

// Registrar writes whole-song embeddings into one index per mode and,
// optionally, segment embeddings into a segment index in the same pass.
type Registrar struct {
	extractor Extractor
	indexes   []ModeIndex
	segments  index.SegmentIndex // nil disables segment registration
	opts      Options
}

// New creates a new registrar. segments may be nil.
func New(extractor Extractor, indexes []ModeIndex, segments index.SegmentIndex, optFns ...func(o *Options)) *Registrar {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Registrar{
		extractor: extractor,
		indexes:   indexes,
		segments:  segments,
		opts:      opts,
	}
}

// Register processes the jobs on the worker pool and reports per-file
// outcomes. The returned error is reserved for pool-level failures
// (context cancellation); decode and extraction failures land in the
// summary instead.
func (r *Registrar) Register(ctx context.Context, jobs []Job) (*Summary, error) {
	sem := semaphore.NewWeighted(int64(r.opts.Concurrency))
	g, ctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	summary := &Summary{}

	for _, job := range jobs {
		job := job
		if err := sem.Acquire(ctx, 1); err != nil {
			break // context gone, stop scheduling
		}

		g.Go(func() error {
			defer sem.Release(1)

			if r.opts.Limiter != nil {
				if err := r.opts.Limiter.Wait(ctx); err != nil {
					return err
				}
			}

			err := r.registerOne(ctx, job)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					return err // cancellation is a pool failure, not a file failure
				}
				summary.Failed++
				summary.Failures = append(summary.Failures, FileError{SongID: job.SongID, Path: job.Path, Err: err})
				return nil
			}
			summary.Succeeded++
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(summary.Failures, func(i, j int) bool {
		return summary.Failures[i].SongID < summary.Failures[j].SongID
	})
	return summary, nil
}

func (r *Registrar) registerOne(ctx context.Context, job Job) error {
	for _, mi := range r.indexes {
		emb, err := r.extractor.Extract(ctx, job.Path, r.opts.DurationSeconds, mi.Mode)
		if err != nil {
			return err
		}
		if err := mi.Index.Put(ctx, model.SongRecord{SongID: job.SongID, Embedding: emb}); err != nil {
			return err
		}
	}

	if r.segments == nil {
		return nil
	}

	embs, err := r.extractor.ExtractSegments(ctx, job.Path, r.opts.SegmentSeconds, r.opts.SegmentMode)
	if err != nil {
		return err
	}
	segs := make([]model.SegmentEmbedding, len(embs))
	for i, emb := range embs {
		segs[i] = model.SegmentEmbedding{SongID: job.SongID, SegmentIndex: i, Embedding: emb}
	}
	return r.segments.PutSegments(ctx, segs)
}
