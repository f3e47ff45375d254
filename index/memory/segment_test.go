package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/melodex/distance"
	"github.com/hupe1980/melodex/index"
	"github.com/hupe1980/melodex/model"
)

func seg(id model.SongID, n int, v ...float32) model.SegmentEmbedding {
	return model.SegmentEmbedding{
		SongID:       id,
		SegmentIndex: n,
		Embedding:    model.NewEmbedding(model.ModeExternal, v),
	}
}

func TestSegmentIndexPut(t *testing.T) {
	ctx := context.Background()

	si, err := NewSegmentIndex(2)
	require.NoError(t, err)

	require.NoError(t, si.PutSegments(ctx, []model.SegmentEmbedding{
		seg("a", 1, 0, 1),
		seg("a", 0, 1, 0),
		seg("b", 0, 0.5, 0.5),
	}))

	t.Run("SegmentsOfOrdered", func(t *testing.T) {
		segs, err := si.SegmentsOf(ctx, "a")
		require.NoError(t, err)
		require.Len(t, segs, 2)
		assert.Equal(t, 0, segs[0].SegmentIndex)
		assert.Equal(t, 1, segs[1].SegmentIndex)
	})

	t.Run("SegmentsOfUnknownSong", func(t *testing.T) {
		segs, err := si.SegmentsOf(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, segs)
	})

	t.Run("UpsertReplaces", func(t *testing.T) {
		require.NoError(t, si.PutSegments(ctx, []model.SegmentEmbedding{
			seg("a", 0, 0.2, 0.8),
		}))
		segs, err := si.SegmentsOf(ctx, "a")
		require.NoError(t, err)
		require.Len(t, segs, 2)
		assert.Equal(t, []float32{0.2, 0.8}, segs[0].Embedding.Vector)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		err := si.PutSegments(ctx, []model.SegmentEmbedding{
			seg("c", 0, 1, 2, 3),
		})
		var dm *index.ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
	})
}

func TestSegmentIndexQuery(t *testing.T) {
	ctx := context.Background()

	si, err := NewSegmentIndex(2)
	require.NoError(t, err)
	require.NoError(t, si.PutSegments(ctx, []model.SegmentEmbedding{
		seg("a", 0, 1, 0),
		seg("a", 1, 0.9, 0.1),
		seg("b", 0, 0, 1),
	}))

	t.Run("NearestFirst", func(t *testing.T) {
		matches, err := si.QuerySegments(ctx, []float32{1, 0}, 2, distance.MetricCosine)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, model.SegmentRef{SongID: "a", SegmentIndex: 0}, matches[0].Ref)
		assert.Equal(t, model.SegmentRef{SongID: "a", SegmentIndex: 1}, matches[1].Ref)
	})

	t.Run("ExcludeSong", func(t *testing.T) {
		matches, err := si.QuerySegments(ctx, []float32{1, 0}, 5, distance.MetricCosine, func(o *index.QueryOptions) {
			o.ExcludeSongID = "a"
		})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, model.SongID("b"), matches[0].Ref.SongID)
	})

	t.Run("MaxDistance", func(t *testing.T) {
		matches, err := si.QuerySegments(ctx, []float32{1, 0}, 5, distance.MetricCosine, func(o *index.QueryOptions) {
			o.MaxDistance = 0.2
		})
		require.NoError(t, err)
		require.Len(t, matches, 2)
	})

	t.Run("InvalidK", func(t *testing.T) {
		_, err := si.QuerySegments(ctx, []float32{1, 0}, -1, distance.MetricCosine)
		assert.ErrorIs(t, err, index.ErrInvalidK)
	})
}

func TestSegmentIndexDelete(t *testing.T) {
	ctx := context.Background()

	si, err := NewSegmentIndex(2)
	require.NoError(t, err)
	require.NoError(t, si.PutSegments(ctx, []model.SegmentEmbedding{
		seg("a", 0, 1, 0),
		seg("b", 0, 0, 1),
		seg("a", 1, 0.5, 0.5),
	}))

	require.NoError(t, si.DeleteSegments(ctx, "a"))

	segs, err := si.SegmentsOf(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, segs)

	// The surviving song is still queryable after compaction.
	matches, err := si.QuerySegments(ctx, []float32{0, 1}, 5, distance.MetricCosine)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, model.SongID("b"), matches[0].Ref.SongID)

	// Deleting an absent song is a no-op.
	require.NoError(t, si.DeleteSegments(ctx, "a"))
}
