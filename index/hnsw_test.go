package index

import (
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/searchit/core"
)

func randUnitVector(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return core.Normalize(v)
}

func bruteForceTopK(vectors map[uint64][]float32, query []float32, k int) []core.Hit {
	hits := make([]core.Hit, 0, len(vectors))
	for id, v := range vectors {
		hits = append(hits, core.Hit{ID: id, Score: core.Dot(query, v)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func TestIndexEmpty(t *testing.T) {
	ix := NewIndex(8)

	hits, err := ix.Search(make([]float32, 8), 5, 50)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, 0, ix.Len())
}

func TestIndexDimensionMismatch(t *testing.T) {
	ix := NewIndex(8)

	err := ix.Insert(1, make([]float32, 4))
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	_, err = ix.Search(make([]float32, 4), 5, 50)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestIndexExactMatch(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ix := NewIndex(32, WithSeed(7))

	vectors := make(map[uint64][]float32)
	for id := uint64(1); id <= 50; id++ {
		v := randUnitVector(rng, 32)
		vectors[id] = v
		require.NoError(t, ix.Insert(id, v))
	}
	require.Equal(t, 50, ix.Len())

	for id, v := range vectors {
		hits, err := ix.Search(v, 1, 50)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, id, hits[0].ID)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-4)
	}
}

func TestIndexRecall(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ix := NewIndex(32, WithSeed(42))

	vectors := make(map[uint64][]float32)
	for id := uint64(1); id <= 500; id++ {
		v := randUnitVector(rng, 32)
		vectors[id] = v
		require.NoError(t, ix.Insert(id, v))
	}

	const k = 10
	var found, total int
	for q := 0; q < 20; q++ {
		query := randUnitVector(rng, 32)

		want := bruteForceTopK(vectors, query, k)
		got, err := ix.Search(query, k, 200)
		require.NoError(t, err)
		require.Len(t, got, k)

		wantIDs := make(map[uint64]bool, k)
		for _, h := range want {
			wantIDs[h.ID] = true
		}
		for _, h := range got {
			if wantIDs[h.ID] {
				found++
			}
		}
		total += k
	}

	recall := float64(found) / float64(total)
	assert.GreaterOrEqual(t, recall, 0.8, "recall %.2f below threshold", recall)
}

func TestIndexResultsOrdered(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	ix := NewIndex(16, WithSeed(3))

	for id := uint64(1); id <= 100; id++ {
		require.NoError(t, ix.Insert(id, randUnitVector(rng, 16)))
	}

	hits, err := ix.Search(randUnitVector(rng, 16), 20, 100)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	for i := 1; i < len(hits); i++ {
		prev, curr := hits[i-1], hits[i]
		ok := prev.Score > curr.Score || (prev.Score == curr.Score && prev.ID < curr.ID)
		assert.True(t, ok, "hits out of order at %d: %+v then %+v", i, prev, curr)
	}
}

func TestIndexConcurrentReads(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	ix := NewIndex(16, WithSeed(11))

	for id := uint64(1); id <= 200; id++ {
		require.NoError(t, ix.Insert(id, randUnitVector(rng, 16)))
	}

	queries := make([][]float32, 8)
	for i := range queries {
		queries[i] = randUnitVector(rng, 16)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(queries))
	for _, q := range queries {
		wg.Add(1)
		go func(query []float32) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, err := ix.Search(query, 10, 60); err != nil {
					errs <- err
					return
				}
			}
		}(q)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatal(err)
	}
}
