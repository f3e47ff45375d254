package melodex

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/melodex/blobstore"
	"github.com/hupe1980/melodex/chain"
	"github.com/hupe1980/melodex/model"
	"github.com/hupe1980/melodex/segment"
)

// minimalVec embeds a 2D direction into a minimal-mode vector so cosine
// distances are exactly the planar angles.
func minimalVec(degrees float64) []float32 {
	v := make([]float32, model.ModeMinimal.Dimension())
	rad := degrees * math.Pi / 180
	v[0] = float32(math.Cos(rad))
	v[1] = float32(math.Sin(rad))
	return v
}

func newTestEngine(t *testing.T, optFns ...Option) *Engine {
	t.Helper()
	eng, err := New(append([]Option{
		WithModes(model.ModeMinimal),
		WithSegmentMode(model.ModeMinimal),
	}, optFns...)...)
	require.NoError(t, err)
	return eng
}

func putSongs(t *testing.T, eng *Engine, angles map[model.SongID]float64) {
	t.Helper()
	ctx := context.Background()
	for id, deg := range angles {
		require.NoError(t, eng.PutSong(ctx, model.SongRecord{
			SongID:    id,
			Embedding: model.NewEmbedding(model.ModeMinimal, minimalVec(deg)),
		}))
	}
}

func TestNewValidation(t *testing.T) {
	t.Run("NoModes", func(t *testing.T) {
		_, err := New(WithModes())
		assert.Error(t, err)
	})

	t.Run("ExternalMode", func(t *testing.T) {
		_, err := New(WithModes(model.ModeExternal))
		assert.Error(t, err)
	})

	t.Run("ExternalSegmentMode", func(t *testing.T) {
		_, err := New(WithSegmentMode(model.ModeExternal))
		assert.Error(t, err)
	})

	t.Run("DuplicateModes", func(t *testing.T) {
		_, err := New(WithModes(model.ModeFull, model.ModeFull))
		assert.Error(t, err)
	})
}

func TestSimilar(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	putSongs(t, eng, map[model.SongID]float64{"a": 0, "b": 10, "c": 30, "d": 90})

	t.Run("RankedNearestFirst", func(t *testing.T) {
		matches, err := eng.Similar(ctx, "a", 2, model.ModeMinimal)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, model.SongID("b"), matches[0].SongID)
		assert.Equal(t, model.SongID("c"), matches[1].SongID)
	})

	t.Run("SelfNeverReturned", func(t *testing.T) {
		matches, err := eng.Similar(ctx, "a", 10, model.ModeMinimal)
		require.NoError(t, err)
		for _, m := range matches {
			assert.NotEqual(t, model.SongID("a"), m.SongID)
		}
	})

	t.Run("UnknownSong", func(t *testing.T) {
		_, err := eng.Similar(ctx, "ghost", 2, model.ModeMinimal)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("InvalidK", func(t *testing.T) {
		_, err := eng.Similar(ctx, "a", 0, model.ModeMinimal)
		assert.ErrorIs(t, err, ErrInvalidK)
	})

	t.Run("UnservedMode", func(t *testing.T) {
		_, err := eng.Similar(ctx, "a", 2, model.ModeFull)
		assert.ErrorContains(t, err, "no index for mode")
	})
}

func TestPutSongUnservedMode(t *testing.T) {
	eng := newTestEngine(t)
	err := eng.PutSong(context.Background(), model.SongRecord{
		SongID:    "a",
		Embedding: model.NewEmbedding(model.ModeFull, make([]float32, model.ModeFull.Dimension())),
	})
	assert.ErrorContains(t, err, "no index for mode")
}

func TestSetExcluded(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	putSongs(t, eng, map[model.SongID]float64{"a": 0, "b": 10, "c": 30})

	require.NoError(t, eng.SetExcluded(ctx, "b", true))

	matches, err := eng.Similar(ctx, "a", 10, model.ModeMinimal)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, model.SongID("c"), matches[0].SongID)

	rec, err := eng.Get(ctx, "b", model.ModeMinimal)
	require.NoError(t, err)
	assert.True(t, rec.ExcludedFromSearch)

	t.Run("Unknown", func(t *testing.T) {
		err := eng.SetExcluded(ctx, "ghost", true)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	putSongs(t, eng, map[model.SongID]float64{"a": 0, "b": 10, "c": 25, "d": 90})

	t.Run("GreedyWalk", func(t *testing.T) {
		result, err := eng.Chain(ctx, "a", 3)
		require.NoError(t, err)
		assert.Equal(t, []model.SongID{"a", "b", "c"}, result.SongIDs())
	})

	t.Run("PartialOnExhaustion", func(t *testing.T) {
		result, err := eng.Chain(ctx, "a", 10)
		require.NoError(t, err)
		assert.Equal(t, []model.SongID{"a", "b", "c", "d"}, result.SongIDs())
	})

	t.Run("Filtered", func(t *testing.T) {
		result, err := eng.Chain(ctx, "a", 3, func(id model.SongID) bool { return id != "b" })
		require.NoError(t, err)
		assert.Equal(t, []model.SongID{"a", "c", "d"}, result.SongIDs())
	})

	t.Run("SeedNotFound", func(t *testing.T) {
		_, err := eng.Chain(ctx, "ghost", 3)
		assert.ErrorIs(t, err, chain.ErrSeedNotFound)
	})
}

func putAlignedSegments(t *testing.T, eng *Engine, id model.SongID, count int, degrees float64) {
	t.Helper()
	segs := make([]model.SegmentEmbedding, count)
	for i := range segs {
		segs[i] = model.SegmentEmbedding{
			SongID:       id,
			SegmentIndex: i,
			Embedding:    model.NewEmbedding(model.ModeMinimal, minimalVec(degrees)),
		}
	}
	require.NoError(t, eng.SegmentIndex().PutSegments(context.Background(), segs))
}

func TestSegmentScoreAndChain(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, WithScorerOptions(func(o *segment.Options) {
		o.SkipStartSeconds = 0
		o.SkipEndSeconds = 0
	}))

	// q matches x exactly; y points elsewhere and never survives the
	// distance cutoff.
	putAlignedSegments(t, eng, "q", 4, 0)
	putAlignedSegments(t, eng, "x", 4, 0)
	putAlignedSegments(t, eng, "y", 4, 120)

	t.Run("Score", func(t *testing.T) {
		scores, err := eng.SegmentScore(ctx, "q")
		require.NoError(t, err)
		require.Len(t, scores, 1)
		assert.Equal(t, model.SongID("x"), scores[0].SongID)
		assert.Equal(t, 1.0, scores[0].Coverage)
	})

	t.Run("NoSegments", func(t *testing.T) {
		_, err := eng.SegmentScore(ctx, "ghost")
		var insufficient *segment.InsufficientSegmentsError
		assert.ErrorAs(t, err, &insufficient)
	})

	t.Run("SegmentChain", func(t *testing.T) {
		result, err := eng.SegmentChain(ctx, "q", 2)
		require.NoError(t, err)
		require.Len(t, result, 2)
		assert.Equal(t, model.SongID("x"), result[1].SongID)
		assert.Negative(t, result[1].Distance)
	})
}

func TestSnapshotRoundtrip(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	eng := newTestEngine(t)
	putSongs(t, eng, map[model.SongID]float64{"a": 0, "b": 10})
	putAlignedSegments(t, eng, "a", 3, 0)
	require.NoError(t, eng.SetExcluded(ctx, "b", true))

	require.NoError(t, eng.SaveSnapshot(ctx, store, "corpus"))

	restored := newTestEngine(t)
	require.NoError(t, restored.LoadSnapshot(ctx, store, "corpus"))

	rec, err := restored.Get(ctx, "b", model.ModeMinimal)
	require.NoError(t, err)
	assert.True(t, rec.ExcludedFromSearch)

	segs, err := restored.SegmentIndex().SegmentsOf(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, segs, 3)

	t.Run("MissingPrefix", func(t *testing.T) {
		err := restored.LoadSnapshot(ctx, store, "absent")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMetricsCollected(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}
	eng := newTestEngine(t, WithMetricsCollector(metrics))
	putSongs(t, eng, map[model.SongID]float64{"a": 0, "b": 10})

	_, err := eng.Similar(ctx, "a", 1, model.ModeMinimal)
	require.NoError(t, err)
	_, _ = eng.Similar(ctx, "ghost", 1, model.ModeMinimal)

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.SimilarCount)
	assert.Equal(t, int64(1), stats.SimilarErrors)
}
