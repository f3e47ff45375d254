package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/melodex/model"
)

func TestTopK(t *testing.T) {
	t.Run("KeepsNearestK", func(t *testing.T) {
		q := NewTopK(2)
		q.Offer("a", 0.5)
		q.Offer("b", 0.1)
		q.Offer("c", 0.9)
		q.Offer("d", 0.2)

		items := q.Drain()
		require.Len(t, items, 2)
		assert.Equal(t, model.SongID("b"), items[0].SongID)
		assert.Equal(t, model.SongID("d"), items[1].SongID)
	})

	t.Run("FewerThanK", func(t *testing.T) {
		q := NewTopK(10)
		q.Offer("a", 0.3)
		q.Offer("b", 0.1)

		items := q.Drain()
		require.Len(t, items, 2)
		assert.Equal(t, model.SongID("b"), items[0].SongID)
	})

	t.Run("TieBreaksBySongID", func(t *testing.T) {
		q := NewTopK(3)
		q.Offer("zeta", 0.5)
		q.Offer("alpha", 0.5)
		q.Offer("mid", 0.5)
		q.Offer("beta", 0.5) // evicts zeta: same distance, larger id

		items := q.Drain()
		require.Len(t, items, 3)
		assert.Equal(t, model.SongID("alpha"), items[0].SongID)
		assert.Equal(t, model.SongID("beta"), items[1].SongID)
		assert.Equal(t, model.SongID("mid"), items[2].SongID)
	})

	t.Run("DrainEmpty", func(t *testing.T) {
		q := NewTopK(4)
		assert.Empty(t, q.Drain())
	})
}
