package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/searchit/core"
	"github.com/poiesic/searchit/index"
	"github.com/poiesic/searchit/shard"
	"github.com/poiesic/searchit/storage"
)

// DefaultShardTimeout bounds how long one shard query may run before it is
// excluded from the merge.
const DefaultShardTimeout = 2 * time.Second

// Request is a vector query against one granularity.
type Request struct {
	Vector      []float32
	K           int
	Granularity core.Granularity

	// EFSearch overrides the candidate list size of the underlying graph
	// search. Zero means the orchestrator default.
	EFSearch int
}

// Result is one ranked hit resolved back to its resource. Partial marks a
// hit whose resource record could not be read; the ranking itself is still
// valid.
type Result struct {
	UID     core.UID
	URL     string
	Title   string
	IconURL string
	Score   float32
	Partial bool
}

// Response is a ranked result list. Partial is set when at least one shard
// failed or timed out, so degraded recall is distinguishable from a
// complete answer.
type Response struct {
	Results []Result
	Partial bool
}

// IndexSearcher is the per-shard vector search surface the orchestrator
// fans out over. *index.Set satisfies it.
type IndexSearcher interface {
	Shards() int
	Search(ctx context.Context, shard int, granularity core.Granularity, query []float32, k, efSearch int) ([]core.Hit, error)
}

// Orchestrator fans a query out to every shard index, merges the per-shard
// rankings, resolves identifiers back to URLs, and assembles result records
// from the shard stores.
type Orchestrator struct {
	stores       []storage.RecordStore
	ids          storage.IdentifierService
	set          IndexSearcher
	router       *shard.Router
	pool         *ants.Pool
	logger       *slog.Logger
	shardTimeout time.Duration
	efSearch     int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// WithShardTimeout sets the per-shard query deadline.
func WithShardTimeout(d time.Duration) Option {
	return func(o *Orchestrator) error {
		if d <= 0 {
			return fmt.Errorf("%w: shard timeout must be positive", ErrInvalidRequest)
		}
		o.shardTimeout = d
		return nil
	}
}

// WithEFSearch sets the default graph search candidate list size.
func WithEFSearch(ef int) Option {
	return func(o *Orchestrator) error {
		if ef < 1 {
			ef = 1
		}
		o.efSearch = ef
		return nil
	}
}

// WithPoolSize caps the fan-out concurrency.
// Default is one worker per shard.
func WithPoolSize(size int) Option {
	return func(o *Orchestrator) error {
		if size < 1 {
			size = 1
		}
		if o.pool != nil {
			o.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		o.pool = pool
		return nil
	}
}

// NewOrchestrator creates an orchestrator over one store per shard. The
// store slice index is the shard ordinal and must match the index set's
// shard count.
func NewOrchestrator(
	stores []storage.RecordStore,
	ids storage.IdentifierService,
	set IndexSearcher,
	opts ...Option,
) (*Orchestrator, error) {
	if len(stores) == 0 {
		return nil, ErrStoresRequired
	}
	if ids == nil {
		return nil, ErrIdentifiersRequired
	}
	if set == nil {
		return nil, ErrIndexSetRequired
	}
	if set.Shards() != len(stores) {
		return nil, fmt.Errorf("%w: %d stores, %d index shards",
			ErrShardCountMismatch, len(stores), set.Shards())
	}

	pool, err := ants.NewPool(len(stores))
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		stores:       stores,
		ids:          ids,
		set:          set,
		router:       shard.NewRouter(len(stores)),
		pool:         pool,
		logger:       slog.Default(),
		shardTimeout: DefaultShardTimeout,
		efSearch:     index.DefaultEFSearch,
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(o); err != nil {
			o.Release()
			return nil, err
		}
	}

	return o, nil
}

// Search runs a vector query and returns the top-k results, globally
// ranked across all shards.
func (o *Orchestrator) Search(ctx context.Context, req Request) (*Response, error) {
	return o.SearchWithMonitor(ctx, req, nil)
}

// shardHits carries one shard's outcome back to the collecting goroutine.
type shardHits struct {
	shard int
	hits  []core.Hit
	err   error
}

// SearchWithMonitor runs a vector query with monitoring. The monitor
// receives callbacks at each stage: fan-out, merge, resolution, assembly.
//
// Shard failures and timeouts degrade the response to Partial rather than
// failing it; only total shard failure is an error.
func (o *Orchestrator) SearchWithMonitor(ctx context.Context, req Request, monitor QueryMonitor) (*Response, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	if req.K < 1 {
		return nil, fmt.Errorf("%w: k must be positive", ErrInvalidRequest)
	}
	if len(req.Vector) != core.Dim {
		return nil, fmt.Errorf("%w: vector dimension %d, want %d",
			ErrInvalidRequest, len(req.Vector), core.Dim)
	}
	if req.Granularity != core.GranularityPage && req.Granularity != core.GranularityStatement {
		return nil, fmt.Errorf("%w: unknown granularity %d", ErrInvalidRequest, req.Granularity)
	}

	monitor.Start(req.Granularity, req.K)

	ef := req.EFSearch
	if ef == 0 {
		ef = o.efSearch
	}

	// 1. Fan out one query per shard. Caller cancellation propagates to
	// every outstanding shard query through the derived context.
	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make(chan shardHits, len(o.stores))
	var wg sync.WaitGroup
	for i := range o.stores {
		i := i
		wg.Add(1)
		err := o.pool.Submit(func() {
			defer wg.Done()
			shardCtx, cancelShard := context.WithTimeout(fanCtx, o.shardTimeout)
			defer cancelShard()
			hits, err := o.set.Search(shardCtx, i, req.Granularity, req.Vector, req.K, ef)
			outcomes <- shardHits{shard: i, hits: hits, err: err}
		})
		if err != nil {
			wg.Done()
			outcomes <- shardHits{shard: i, err: err}
		}
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	// 2. Collect as shards complete. A failed shard is excluded from the
	// merge, not fatal. The deadline is enforced here, not just inside the
	// shard queries: a shard that has not answered in time is abandoned and
	// excluded, even when its search never observes the expired context.
	// Late goroutines drain into the buffered channel.
	lists := make([][]core.Hit, 0, len(o.stores))
	answered := make([]bool, len(o.stores))
	failed := 0
	deadline := time.NewTimer(o.shardTimeout)
	defer deadline.Stop()
collect:
	for pending := len(o.stores); pending > 0; {
		select {
		case outcome := <-outcomes:
			pending--
			answered[outcome.shard] = true
			if outcome.err != nil {
				failed++
				o.logger.Warn("shard query failed", "shard", outcome.shard, "err", outcome.err)
				monitor.ShardFailed(outcome.shard, outcome.err)
				continue
			}
			monitor.ShardSearched(outcome.shard, len(outcome.hits))
			if len(outcome.hits) > 0 {
				lists = append(lists, outcome.hits)
			}
		case <-deadline.C:
			break collect
		}
	}
	cancel()
	for i, ok := range answered {
		if !ok {
			failed++
			o.logger.Warn("shard query missed deadline", "shard", i)
			monitor.ShardFailed(i, context.DeadlineExceeded)
		}
	}
	if failed == len(o.stores) {
		// Every shard reporting the caller's own cancellation is not a
		// cluster failure.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrAllShardsFailed
	}
	partial := failed > 0

	// 3. Merge into one global ranking.
	merged := index.Merge(req.K, lists...)
	monitor.AfterMerge(merged)

	// 4. Resolve hits to resource uids, deduplicating per resource. The
	// merged list is best-first, so the first occurrence of a resource is
	// its highest-scoring hit.
	type ranked struct {
		uid   core.UID
		score float32
	}
	ordered := make([]ranked, 0, len(merged))
	seen := make(map[core.UID]bool, len(merged))
	for _, hit := range merged {
		uid := core.UID(hit.ID)
		if req.Granularity == core.GranularityStatement {
			owner, err := o.ids.ResolveStatement(ctx, core.StatementUID(hit.ID))
			if errors.Is(err, storage.ErrNotFound) {
				o.logger.Warn("statement hit has no owning resource", "statementUID", hit.ID)
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("resolving statement %d: %w", hit.ID, err)
			}
			uid = owner
		}
		if seen[uid] {
			continue
		}
		seen[uid] = true
		ordered = append(ordered, ranked{uid: uid, score: hit.Score})
	}

	uids := make([]core.UID, len(ordered))
	for i, r := range ordered {
		uids[i] = r.uid
	}
	monitor.AfterResolution(uids)

	// 5. Assemble final records. A missing or corrupt resource record
	// degrades that hit, never the query.
	results := make([]Result, 0, len(ordered))
	for _, r := range ordered {
		url, err := o.ids.LookupURL(ctx, r.uid)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				o.logger.Warn("hit uid has no url mapping", "uid", uint64(r.uid))
				monitor.DegradedResult(r.uid, err)
				continue
			}
			return nil, fmt.Errorf("looking up url for uid %d: %w", r.uid, err)
		}

		result := Result{UID: r.uid, URL: url, Score: r.score}
		record, err := o.GetResource(ctx, url)
		if err != nil {
			o.logger.Warn("resource record unavailable for hit", "url", url, "err", err)
			monitor.DegradedResult(r.uid, err)
			result.Partial = true
		} else if detail, ok := record.Page(); ok {
			result.Title = detail.Title
			result.IconURL = detail.IconURL
		}
		results = append(results, result)
	}

	monitor.Finish(results)
	return &Response{Results: results, Partial: partial}, nil
}

// LookupUID resolves a URL to its uid without vector search.
func (o *Orchestrator) LookupUID(ctx context.Context, url string) (core.UID, error) {
	return o.ids.LookupUID(ctx, url)
}

// LookupURL resolves a uid to its URL without vector search.
func (o *Orchestrator) LookupURL(ctx context.Context, uid core.UID) (string, error) {
	return o.ids.LookupURL(ctx, uid)
}

// GetResource fetches a URL's resource record from its owning shard.
func (o *Orchestrator) GetResource(ctx context.Context, url string) (*core.ResourceRecord, error) {
	store := o.stores[o.router.OfString(url)]
	data, err := store.Get(ctx, storage.TypeResource, []byte(url))
	if err != nil {
		return nil, err
	}
	return storage.UnmarshalResourceRecord(data)
}

// Release releases the fan-out worker pool.
// The orchestrator should not be used after calling Release.
func (o *Orchestrator) Release() {
	if o.pool != nil {
		o.pool.Release()
	}
}
