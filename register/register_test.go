package register

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/hupe1980/melodex/index/memory"
	"github.com/hupe1980/melodex/model"
)

type stubExtractor struct {
	failing  map[string]error
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (s *stubExtractor) track() func() {
	cur := s.inFlight.Add(1)
	for {
		seen := s.maxSeen.Load()
		if cur <= seen || s.maxSeen.CompareAndSwap(seen, cur) {
			break
		}
	}
	return func() { s.inFlight.Add(-1) }
}

func (s *stubExtractor) Extract(ctx context.Context, path string, _ float64, mode model.Mode) (model.Embedding, error) {
	defer s.track()()
	if err := s.failing[path]; err != nil {
		return model.Embedding{}, err
	}
	v := make([]float32, mode.Dimension())
	v[0] = 1
	return model.Embedding{Mode: mode, Vector: v}, nil
}

func (s *stubExtractor) ExtractSegments(ctx context.Context, path string, _ float64, _ model.Mode) ([]model.Embedding, error) {
	if err := s.failing[path]; err != nil {
		return nil, err
	}
	out := make([]model.Embedding, 3)
	for i := range out {
		out[i] = model.NewEmbedding(model.ModeExternal, []float32{1, float32(i)})
	}
	return out, nil
}

func newTestRegistrar(t *testing.T, ext Extractor) (*Registrar, *memory.Index, *memory.SegmentIndex) {
	t.Helper()

	idx, err := memory.ForMode(model.ModeMinimal)
	require.NoError(t, err)
	segIdx, err := memory.NewSegmentIndex(2)
	require.NoError(t, err)

	reg := New(ext, []ModeIndex{{Mode: model.ModeMinimal, Index: idx}}, segIdx, func(o *Options) {
		o.SegmentMode = model.ModeExternal
	})
	return reg, idx, segIdx
}

func TestRegisterBatch(t *testing.T) {
	ctx := context.Background()
	reg, idx, segIdx := newTestRegistrar(t, &stubExtractor{})

	jobs := []Job{
		{SongID: "one", Path: "/music/one.mp3"},
		{SongID: "two", Path: "/music/two.mp3"},
		{SongID: "three", Path: "/music/three.mp3"},
	}

	summary, err := reg.Register(ctx, jobs)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Zero(t, summary.Failed)

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	segs, err := segIdx.SegmentsOf(ctx, "two")
	require.NoError(t, err)
	assert.Len(t, segs, 3)
}

func TestRegisterFailureIsolation(t *testing.T) {
	ctx := context.Background()

	broken := errors.New("unreadable stream")
	ext := &stubExtractor{failing: map[string]error{"/music/bad.mp3": broken}}
	reg, idx, _ := newTestRegistrar(t, ext)

	summary, err := reg.Register(ctx, []Job{
		{SongID: "good", Path: "/music/good.mp3"},
		{SongID: "bad", Path: "/music/bad.mp3"},
		{SongID: "fine", Path: "/music/fine.mp3"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, model.SongID("bad"), summary.Failures[0].SongID)
	assert.ErrorIs(t, &summary.Failures[0], broken)

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRegisterBoundedConcurrency(t *testing.T) {
	ctx := context.Background()

	ext := &stubExtractor{}
	reg, _, _ := newTestRegistrar(t, ext)
	// Rebuild with an explicit bound and a no-op pace limiter.
	idx, err := memory.ForMode(model.ModeMinimal)
	require.NoError(t, err)
	reg = New(ext, []ModeIndex{{Mode: model.ModeMinimal, Index: idx}}, nil, func(o *Options) {
		o.Concurrency = 2
		o.Limiter = rate.NewLimiter(rate.Inf, 1)
	})

	jobs := make([]Job, 24)
	for i := range jobs {
		jobs[i] = JobFromPath(fmt.Sprintf("/music/song-%02d.flac", i))
	}

	summary, err := reg.Register(ctx, jobs)
	require.NoError(t, err)
	assert.Equal(t, 24, summary.Succeeded)
	assert.LessOrEqual(t, ext.maxSeen.Load(), int32(2))
}

func TestJobFromPath(t *testing.T) {
	job := JobFromPath("/library/artist/track one.mp3")
	assert.Equal(t, model.SongID("track one"), job.SongID)
	assert.Equal(t, "/library/artist/track one.mp3", job.Path)
}

func TestRegisterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reg, _, _ := newTestRegistrar(t, &stubExtractor{})
	_, err := reg.Register(ctx, []Job{{SongID: "x", Path: "/music/x.mp3"}})
	// Either no jobs were scheduled (empty summary) or the pool reports
	// the cancellation; both are acceptable, a hang is not.
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
