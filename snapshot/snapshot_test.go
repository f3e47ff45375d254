package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/melodex/blobstore"
	"github.com/hupe1980/melodex/codec"
	"github.com/hupe1980/melodex/index/memory"
	"github.com/hupe1980/melodex/model"
)

func seedIndexes(t *testing.T) (*memory.Index, *memory.SegmentIndex) {
	t.Helper()
	ctx := context.Background()

	idx, err := memory.New(3)
	require.NoError(t, err)
	require.NoError(t, idx.Put(ctx, model.SongRecord{
		SongID:    "a",
		Embedding: model.NewEmbedding(model.ModeExternal, []float32{1, 2, 3}),
	}))
	require.NoError(t, idx.Put(ctx, model.SongRecord{
		SongID:             "b",
		Embedding:          model.NewEmbedding(model.ModeExternal, []float32{4, 5, 6}),
		ExcludedFromSearch: true,
	}))

	segIdx, err := memory.NewSegmentIndex(3)
	require.NoError(t, err)
	require.NoError(t, segIdx.PutSegments(ctx, []model.SegmentEmbedding{
		{SongID: "a", SegmentIndex: 0, Embedding: model.NewEmbedding(model.ModeExternal, []float32{1, 0, 0})},
		{SongID: "a", SegmentIndex: 1, Embedding: model.NewEmbedding(model.ModeExternal, []float32{0, 1, 0})},
	}))
	return idx, segIdx
}

func TestSnapshotRoundtrip(t *testing.T) {
	ctx := context.Background()

	schemes := map[string]Compression{
		"None": CompressionNone,
		"LZ4":  CompressionLZ4,
		"ZSTD": CompressionZSTD,
	}
	for name, compression := range schemes {
		t.Run(name, func(t *testing.T) {
			store := blobstore.NewMemoryStore()
			idx, segIdx := seedIndexes(t)

			require.NoError(t, Save(ctx, store, "snap", idx, segIdx, func(o *Options) {
				o.Compression = compression
			}))

			restored, err := memory.New(3)
			require.NoError(t, err)
			restoredSegs, err := memory.NewSegmentIndex(3)
			require.NoError(t, err)

			require.NoError(t, Load(ctx, store, "snap", restored, restoredSegs))

			a, err := restored.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, []float32{1, 2, 3}, a.Embedding.Vector)

			b, err := restored.Get(ctx, "b")
			require.NoError(t, err)
			assert.True(t, b.ExcludedFromSearch)

			segs, err := restoredSegs.SegmentsOf(ctx, "a")
			require.NoError(t, err)
			assert.Len(t, segs, 2)
		})
	}
}

func TestSnapshotCodecHeader(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	idx, _ := seedIndexes(t)

	// Written with the stdlib codec; the header makes the blob readable
	// without knowing the writer's default.
	require.NoError(t, Save(ctx, store, "snap", idx, nil, func(o *Options) {
		o.Codec = codec.JSON{}
		o.Compression = CompressionNone
	}))

	restored, err := memory.New(3)
	require.NoError(t, err)
	require.NoError(t, Load(ctx, store, "snap", restored, nil))

	n, err := restored.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSnapshotBadInput(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	restored, err := memory.New(3)
	require.NoError(t, err)

	t.Run("Missing", func(t *testing.T) {
		err := Load(ctx, store, "absent", restored, nil)
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("BadMagic", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "junk", []byte("not a snapshot at all")))
		err := Load(ctx, store, "junk", restored, nil)
		assert.ErrorContains(t, err, "invalid header magic")
	})
}
