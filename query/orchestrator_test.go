package query

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/searchit/core"
	"github.com/poiesic/searchit/index"
	"github.com/poiesic/searchit/shard"
	"github.com/poiesic/searchit/storage"
	badgerstore "github.com/poiesic/searchit/storage/badger"
)

type fixture struct {
	stores []storage.RecordStore
	ids    storage.IdentifierService
	set    *index.Set
	router *shard.Router
	rng    *rand.Rand
}

func newFixture(t *testing.T, shards int) *fixture {
	t.Helper()

	stores := make([]storage.RecordStore, shards)
	for i := range stores {
		store, err := badgerstore.NewMemoryStore(i)
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		stores[i] = store
	}

	ids, err := badgerstore.NewMemoryIdentifierStore()
	require.NoError(t, err)
	t.Cleanup(func() { ids.Close() })

	return &fixture{
		stores: stores,
		ids:    ids,
		set:    index.NewSet(shards, core.Dim, index.WithSeed(5)),
		router: shard.NewRouter(shards),
		rng:    rand.New(rand.NewSource(5)),
	}
}

func (f *fixture) randVector() []float32 {
	v := make([]float32, core.Dim)
	for i := range v {
		v[i] = float32(f.rng.NormFloat64())
	}
	return core.Normalize(v)
}

// perturb returns a normalized copy of v nudged by gaussian noise, so that
// its inner product with v is high but below 1.
func (f *fixture) perturb(v []float32, scale float32) []float32 {
	out := make([]float32, len(v))
	for i := range v {
		out[i] = v[i] + scale*float32(f.rng.NormFloat64())
	}
	return core.Normalize(out)
}

// addPage registers a url, writes its resource record, and indexes a page
// vector for it.
func (f *fixture) addPage(t *testing.T, url, title string) (core.UID, []float32) {
	t.Helper()
	ctx := context.Background()

	uid, err := f.ids.Allocate(ctx, url)
	require.NoError(t, err)

	record := &core.ResourceRecord{
		State:         core.StateParsing,
		LastFetchTime: time.Now().UTC(),
		Detail:        core.PageDetail{HTTPStatus: 200, Title: title, IconURL: url + "/favicon.ico"},
	}
	store := f.stores[f.router.OfString(url)]
	require.NoError(t, store.Put(ctx, storage.TypeResource, []byte(url), storage.MarshalResourceRecord(record)))

	v := f.randVector()
	require.NoError(t, f.set.Insert(f.router.OfUID(uint64(uid)), core.GranularityPage, uint64(uid), v))
	return uid, v
}

func (f *fixture) newOrchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(f.stores, f.ids, f.set, opts...)
	require.NoError(t, err)
	t.Cleanup(o.Release)
	return o
}

// flakySearcher fails designated shards and delegates the rest.
type flakySearcher struct {
	*index.Set
	fail map[int]error
}

func (f *flakySearcher) Search(ctx context.Context, shard int, granularity core.Granularity, query []float32, k, efSearch int) ([]core.Hit, error) {
	if err := f.fail[shard]; err != nil {
		return nil, err
	}
	return f.Set.Search(ctx, shard, granularity, query, k, efSearch)
}

// slowSearcher stalls designated shards without watching the context,
// like a shard stuck mid-traversal.
type slowSearcher struct {
	*index.Set
	delay map[int]time.Duration
}

func (s *slowSearcher) Search(ctx context.Context, shard int, granularity core.Granularity, query []float32, k, efSearch int) ([]core.Hit, error) {
	if d, ok := s.delay[shard]; ok {
		time.Sleep(d)
	}
	return s.Set.Search(ctx, shard, granularity, query, k, efSearch)
}

func TestNewOrchestratorValidation(t *testing.T) {
	f := newFixture(t, 2)

	_, err := NewOrchestrator(nil, f.ids, f.set)
	assert.ErrorIs(t, err, ErrStoresRequired)

	_, err = NewOrchestrator(f.stores, nil, f.set)
	assert.ErrorIs(t, err, ErrIdentifiersRequired)

	_, err = NewOrchestrator(f.stores, f.ids, nil)
	assert.ErrorIs(t, err, ErrIndexSetRequired)

	_, err = NewOrchestrator(f.stores[:1], f.ids, f.set)
	assert.ErrorIs(t, err, ErrShardCountMismatch)
}

func TestSearchInvalidRequest(t *testing.T) {
	f := newFixture(t, 2)
	o := f.newOrchestrator(t)
	ctx := context.Background()

	_, err := o.Search(ctx, Request{Vector: f.randVector(), K: 0, Granularity: core.GranularityPage})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = o.Search(ctx, Request{Vector: make([]float32, 8), K: 5, Granularity: core.GranularityPage})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = o.Search(ctx, Request{Vector: f.randVector(), K: 5, Granularity: core.Granularity(9)})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSearchPageGranularity(t *testing.T) {
	f := newFixture(t, 4)

	var wantUID core.UID
	var wantVector []float32
	for i := 0; i < 10; i++ {
		url := fmt.Sprintf("https://example.com/page-%d", i)
		uid, v := f.addPage(t, url, fmt.Sprintf("Page %d", i))
		if i == 3 {
			wantUID, wantVector = uid, v
		}
	}

	o := f.newOrchestrator(t)
	resp, err := o.Search(context.Background(), Request{
		Vector:      wantVector,
		K:           5,
		Granularity: core.GranularityPage,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	assert.False(t, resp.Partial)
	top := resp.Results[0]
	assert.Equal(t, wantUID, top.UID)
	assert.Equal(t, "https://example.com/page-3", top.URL)
	assert.Equal(t, "Page 3", top.Title)
	assert.Equal(t, "https://example.com/page-3/favicon.ico", top.IconURL)
	assert.InDelta(t, 1.0, top.Score, 1e-4)
	assert.False(t, top.Partial)

	for i := 1; i < len(resp.Results); i++ {
		assert.LessOrEqual(t, resp.Results[i].Score, resp.Results[i-1].Score)
	}
}

func TestSearchStatementGranularityResolvesAndDedups(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()

	uid, _ := f.addPage(t, "https://example.com/doc", "Doc")
	base, err := f.ids.AllocateStatementBase(ctx, uid, 3)
	require.NoError(t, err)

	// Three statements of the same resource, all close to the query.
	query := f.randVector()
	for i := 0; i < 3; i++ {
		sid := uint64(base) + uint64(i)
		v := f.perturb(query, 0.05)
		require.NoError(t, f.set.Insert(f.router.OfUID(sid), core.GranularityStatement, sid, v))
	}

	o := f.newOrchestrator(t)
	resp, err := o.Search(ctx, Request{Vector: query, K: 10, Granularity: core.GranularityStatement})
	require.NoError(t, err)

	// All three hits resolve to the same resource and collapse to one
	// result carrying the best score.
	require.Len(t, resp.Results, 1)
	assert.Equal(t, uid, resp.Results[0].UID)
	assert.Equal(t, "https://example.com/doc", resp.Results[0].URL)
	assert.Greater(t, resp.Results[0].Score, float32(0.5))
	assert.False(t, resp.Partial)
}

func TestSearchPartialOnShardFailure(t *testing.T) {
	f := newFixture(t, 4)

	vectors := make(map[core.UID][]float32)
	for i := 0; i < 20; i++ {
		uid, v := f.addPage(t, fmt.Sprintf("https://example.com/p%d", i), fmt.Sprintf("P%d", i))
		vectors[uid] = v
	}

	flaky := &flakySearcher{Set: f.set, fail: map[int]error{0: context.DeadlineExceeded}}
	o, err := NewOrchestrator(f.stores, f.ids, flaky, WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(o.Release)

	resp, err := o.Search(context.Background(), Request{
		Vector:      f.randVector(),
		K:           10,
		Granularity: core.GranularityPage,
	})
	require.NoError(t, err)

	assert.True(t, resp.Partial)
	assert.LessOrEqual(t, len(resp.Results), 10)
	assert.NotEmpty(t, resp.Results)
}

func TestSearchAllShardsFailed(t *testing.T) {
	f := newFixture(t, 3)
	f.addPage(t, "https://example.com/x", "X")

	flaky := &flakySearcher{Set: f.set, fail: map[int]error{
		0: context.DeadlineExceeded,
		1: context.DeadlineExceeded,
		2: context.DeadlineExceeded,
	}}
	o, err := NewOrchestrator(f.stores, f.ids, flaky)
	require.NoError(t, err)
	t.Cleanup(o.Release)

	_, err = o.Search(context.Background(), Request{
		Vector:      f.randVector(),
		K:           5,
		Granularity: core.GranularityPage,
	})
	assert.ErrorIs(t, err, ErrAllShardsFailed)
}

func TestSearchExcludesShardMissingDeadline(t *testing.T) {
	f := newFixture(t, 4)

	var slowUID core.UID
	var slowVector []float32
	for i := 0; i < 12; i++ {
		uid, v := f.addPage(t, fmt.Sprintf("https://example.com/s%d", i), fmt.Sprintf("S%d", i))
		if i == 0 {
			slowUID, slowVector = uid, v
		}
	}
	slowShard := f.router.OfUID(uint64(slowUID))

	slow := &slowSearcher{Set: f.set, delay: map[int]time.Duration{slowShard: 400 * time.Millisecond}}
	o, err := NewOrchestrator(f.stores, f.ids, slow, WithShardTimeout(50*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(o.Release)

	start := time.Now()
	resp, err := o.Search(context.Background(), Request{
		Vector:      slowVector,
		K:           10,
		Granularity: core.GranularityPage,
	})
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.True(t, resp.Partial, "a shard past its deadline must mark the response partial")
	assert.Less(t, elapsed, 300*time.Millisecond, "the query must not wait out a slow shard")
	assert.NotEmpty(t, resp.Results)
	for _, result := range resp.Results {
		assert.NotEqual(t, slowUID, result.UID, "hits from an abandoned shard must not be merged")
	}
}

func TestSearchCancelledContext(t *testing.T) {
	f := newFixture(t, 2)
	f.addPage(t, "https://example.com/x", "X")
	o := f.newOrchestrator(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Search(ctx, Request{
		Vector:      f.randVector(),
		K:           5,
		Granularity: core.GranularityPage,
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrAllShardsFailed)
}

func TestSearchDegradedResultOnMissingRecord(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	uid, v := f.addPage(t, "https://example.com/gone", "Gone")

	// Drop the resource record out from under the index entry.
	url := "https://example.com/gone"
	store := f.stores[f.router.OfString(url)]
	require.NoError(t, store.Delete(ctx, storage.TypeResource, []byte(url)))

	o := f.newOrchestrator(t)
	resp, err := o.Search(ctx, Request{Vector: v, K: 5, Granularity: core.GranularityPage})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	result := resp.Results[0]
	assert.Equal(t, uid, result.UID)
	assert.Equal(t, url, result.URL)
	assert.Empty(t, result.Title)
	assert.True(t, result.Partial)
	assert.False(t, resp.Partial, "record-level degradation must not mark the response partial")
}

func TestSearchDeterministic(t *testing.T) {
	f := newFixture(t, 4)
	for i := 0; i < 30; i++ {
		f.addPage(t, fmt.Sprintf("https://example.com/d%d", i), fmt.Sprintf("D%d", i))
	}

	o := f.newOrchestrator(t)
	query := f.randVector()
	req := Request{Vector: query, K: 10, Granularity: core.GranularityPage}

	first, err := o.Search(context.Background(), req)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := o.Search(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestLookupEntrypoints(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	uid, _ := f.addPage(t, "https://example.com/lookup", "Lookup")
	o := f.newOrchestrator(t)

	got, err := o.LookupUID(ctx, "https://example.com/lookup")
	require.NoError(t, err)
	assert.Equal(t, uid, got)

	url, err := o.LookupURL(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/lookup", url)

	record, err := o.GetResource(ctx, "https://example.com/lookup")
	require.NoError(t, err)
	assert.Equal(t, "Lookup", record.Title())

	_, err = o.LookupUID(ctx, "https://example.com/unknown")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = o.GetResource(ctx, "https://example.com/unknown")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
