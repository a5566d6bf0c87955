package index

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/searchit/core"
)

func TestMergeOrdering(t *testing.T) {
	a := []core.Hit{{ID: 1, Score: 0.9}, {ID: 4, Score: 0.5}, {ID: 7, Score: 0.1}}
	b := []core.Hit{{ID: 2, Score: 0.8}, {ID: 5, Score: 0.4}}
	c := []core.Hit{{ID: 3, Score: 0.7}, {ID: 6, Score: 0.3}}

	merged := Merge(4, a, b, c)

	require.Len(t, merged, 4)
	assert.Equal(t, []core.Hit{
		{ID: 1, Score: 0.9},
		{ID: 2, Score: 0.8},
		{ID: 3, Score: 0.7},
		{ID: 4, Score: 0.5},
	}, merged)
}

func TestMergeTieBreaksOnID(t *testing.T) {
	a := []core.Hit{{ID: 9, Score: 0.5}}
	b := []core.Hit{{ID: 2, Score: 0.5}}
	c := []core.Hit{{ID: 5, Score: 0.5}}

	merged := Merge(3, a, b, c)

	require.Len(t, merged, 3)
	assert.Equal(t, uint64(2), merged[0].ID)
	assert.Equal(t, uint64(5), merged[1].ID)
	assert.Equal(t, uint64(9), merged[2].ID)
}

func TestMergeIndependentOfListOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(19))

	lists := make([][]core.Hit, 8)
	id := uint64(1)
	for i := range lists {
		n := 5 + rng.Intn(10)
		hits := make([]core.Hit, n)
		for j := range hits {
			hits[j] = core.Hit{ID: id, Score: rng.Float32()}
			id++
		}
		sortHits(hits)
		lists[i] = hits
	}

	want := Merge(20, lists...)

	for trial := 0; trial < 10; trial++ {
		shuffled := make([][]core.Hit, len(lists))
		copy(shuffled, lists)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		assert.Equal(t, want, Merge(20, shuffled...))
	}
}

func TestMergeShorterThanK(t *testing.T) {
	a := []core.Hit{{ID: 1, Score: 0.9}}
	b := []core.Hit{{ID: 2, Score: 0.8}}

	merged := Merge(10, a, b)
	assert.Len(t, merged, 2)
}

func TestMergeEmptyInputs(t *testing.T) {
	assert.Empty(t, Merge(10))
	assert.Empty(t, Merge(10, nil, []core.Hit{}))
	assert.Empty(t, Merge(0, []core.Hit{{ID: 1, Score: 0.9}}))
}
