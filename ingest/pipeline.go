package ingest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/searchit/core"
	"github.com/poiesic/searchit/shard"
	"github.com/poiesic/searchit/storage"
)

// IndexInserter is the write surface of the vector index set. *index.Set
// satisfies it.
type IndexInserter interface {
	Shards() int
	Insert(shard int, granularity core.Granularity, id uint64, vector []float32) error
}

// Pipeline applies crawl pipeline output to the shard stores and the vector
// index set: resource state transitions, derived records, statement range
// allocation, and embedding insertion.
type Pipeline struct {
	stores []storage.RecordStore
	ids    storage.IdentifierService
	set    IndexInserter
	router *shard.Router
	pool   *ants.Pool
	logger *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithPoolSize sets the worker pool size for concurrent index insertion.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// NewPipeline creates an ingest pipeline over one store per shard. The
// store slice index is the shard ordinal and must match the index set's
// shard count.
func NewPipeline(
	stores []storage.RecordStore,
	ids storage.IdentifierService,
	set IndexInserter,
	opts ...Option,
) (*Pipeline, error) {
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

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		stores: stores,
		ids:    ids,
		set:    set,
		router: shard.NewRouter(len(stores)),
		pool:   pool,
		logger: slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}

	return p, nil
}

func (p *Pipeline) store(url string) storage.RecordStore {
	return p.stores[p.router.OfString(url)]
}

func (p *Pipeline) loadResource(ctx context.Context, url string) (*core.ResourceRecord, error) {
	data, err := p.store(url).Get(ctx, storage.TypeResource, []byte(url))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return storage.UnmarshalResourceRecord(data)
}

func (p *Pipeline) putResource(ctx context.Context, url string, record *core.ResourceRecord) error {
	return p.store(url).Put(ctx, storage.TypeResource, []byte(url), storage.MarshalResourceRecord(record))
}

// BeginFetch registers a fetch attempt for a URL, allocating a uid on first
// observation. A resource may be refetched while non-terminal; a terminal
// resource rejects further fetches.
func (p *Pipeline) BeginFetch(ctx context.Context, url string, at time.Time) (core.UID, error) {
	uid, err := p.ids.Allocate(ctx, url)
	if err != nil {
		return 0, err
	}

	existing, err := p.loadResource(ctx, url)
	if err != nil {
		return 0, err
	}
	if existing != nil && !existing.State.CanTransition(core.StateFetching) {
		return 0, fmt.Errorf("%w: %s -> %s for %s",
			core.ErrInvalidTransition, existing.State, core.StateFetching, url)
	}

	record := &core.ResourceRecord{
		State:         core.StateFetching,
		LastFetchTime: at.UTC(),
		LastFetchID:   fetchID(url, at),
	}
	if err := p.putResource(ctx, url, record); err != nil {
		return 0, err
	}
	p.logger.Debug("fetch recorded", "url", url, "uid", uint64(uid), "fetchID", record.LastFetchID)
	return uid, nil
}

// fetchID derives a stable identifier for one fetch attempt from the URL
// and the attempt time.
func fetchID(url string, at time.Time) uint64 {
	buf := make([]byte, 0, len(url)+8)
	buf = append(buf, url...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(at.UTC().UnixMicro()))
	return core.DigestOf(buf)
}

// transition moves a resource to the next state, replacing its detail.
func (p *Pipeline) transition(ctx context.Context, url string, next core.ResourceState, detail core.ResourceDetail) error {
	record, err := p.loadResource(ctx, url)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("%w: %s", ErrUnknownResource, url)
	}
	if !record.State.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s for %s", core.ErrInvalidTransition, record.State, next, url)
	}
	if !core.DetailFor(next, detail) {
		return fmt.Errorf("%w: %T for %s", core.ErrDetailMismatch, detail, next)
	}
	record.State = next
	record.Detail = detail
	return p.putResource(ctx, url, record)
}

// MarkRedirected terminates a resource that answered with a redirect.
func (p *Pipeline) MarkRedirected(ctx context.Context, url, location string) error {
	return p.transition(ctx, url, core.StateRedirected, core.RedirectDetail{Location: location})
}

// MarkBadStatus terminates a resource that answered with a non-2xx status.
func (p *Pipeline) MarkBadStatus(ctx context.Context, url string, status int) error {
	return p.transition(ctx, url, core.StateBadStatus, core.BadStatusDetail{HTTPStatus: status})
}

// MarkFetchError terminates a resource whose fetch failed.
func (p *Pipeline) MarkFetchError(ctx context.Context, url, errMsg, details string) error {
	return p.transition(ctx, url, core.StateFetchError, core.FetchFailureDetail{Error: errMsg, ErrorDetails: details})
}

// MarkParseError terminates a resource whose markup could not be parsed.
func (p *Pipeline) MarkParseError(ctx context.Context, url, errMsg string, unrecognized []string) error {
	return p.transition(ctx, url, core.StateParseError, core.ParseFailureDetail{Error: errMsg, UnrecognizedMarkup: unrecognized})
}

// MarkDecompressError terminates a resource whose body could not be decoded.
func (p *Pipeline) MarkDecompressError(ctx context.Context, url, encoding, errMsg string) error {
	return p.transition(ctx, url, core.StateDecompressError, core.DecompressFailureDetail{ContentEncoding: encoding, Error: errMsg})
}

// Parsed is the output of the fetch and normalize stages for one page.
// Derived records are written only when present.
type Parsed struct {
	Page   core.PageDetail
	Links  *core.LinkRecord
	Meta   *core.MetaRecord
	Body   *core.BodyRecord
	Source *core.SourceRecord
}

// ApplyParsed stores a page's derived records and advances it to Parsing.
// Each record write is whole-record replacement; there is no cross-record
// atomicity, so readers may observe one record before another.
func (p *Pipeline) ApplyParsed(ctx context.Context, url string, parsed Parsed) error {
	store := p.store(url)
	key := []byte(url)

	if parsed.Links != nil {
		if err := store.Put(ctx, storage.TypeLinks, key, storage.MarshalLinkRecord(parsed.Links)); err != nil {
			return err
		}
	}
	if parsed.Meta != nil {
		if err := store.Put(ctx, storage.TypeMeta, key, storage.MarshalMetaRecord(parsed.Meta)); err != nil {
			return err
		}
	}
	if parsed.Body != nil {
		if err := store.Put(ctx, storage.TypeBody, key, storage.MarshalBodyRecord(parsed.Body)); err != nil {
			return err
		}
	}
	if parsed.Source != nil {
		if err := store.Put(ctx, storage.TypeSource, key, storage.MarshalSourceRecord(parsed.Source)); err != nil {
			return err
		}
	}

	return p.transition(ctx, url, core.StateParsing, parsed.Page)
}

// ApplyLabelled stores a page's document record, allocates its statement
// uid range, and advances it to Labelling. Returns the allocated base; a
// document with no statements allocates nothing and returns zero.
func (p *Pipeline) ApplyLabelled(ctx context.Context, url string, doc *core.DocumentRecord) (core.StatementUID, error) {
	if err := core.ValidateDocumentRecord(doc); err != nil {
		return 0, err
	}

	record, err := p.loadResource(ctx, url)
	if err != nil {
		return 0, err
	}
	if record == nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownResource, url)
	}
	if !record.State.CanTransition(core.StateLabelling) {
		return 0, fmt.Errorf("%w: %s -> %s for %s",
			core.ErrInvalidTransition, record.State, core.StateLabelling, url)
	}

	var base core.StatementUID
	if len(doc.Statements) > 0 {
		uid, err := p.ids.LookupUID(ctx, url)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrUnknownResource, url)
		}
		base, err = p.ids.AllocateStatementBase(ctx, uid, len(doc.Statements))
		if err != nil {
			return 0, err
		}
	}

	if err := p.store(url).Put(ctx, storage.TypeDocument, []byte(url), storage.MarshalDocumentRecord(doc)); err != nil {
		return 0, err
	}

	// Detail stays the PageDetail written at parse time; it is legal for
	// both Parsing and Labelling.
	record.State = core.StateLabelling
	if err := p.putResource(ctx, url, record); err != nil {
		return 0, err
	}
	return base, nil
}

// ApplyEmbeddings normalizes and stores a resource's vectors, then inserts
// them into the index set. statementVectors[i] belongs to statement uid
// base+i and must match the labelled statement count. Completing this stage
// is what makes the resource visible to queries; no further state is
// recorded.
func (p *Pipeline) ApplyEmbeddings(ctx context.Context, url string, base core.StatementUID, pageVector []float32, statementVectors [][]float32) error {
	record, err := p.loadResource(ctx, url)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("%w: %s", ErrUnknownResource, url)
	}
	if record.State != core.StateLabelling {
		return fmt.Errorf("%w: embeddings require labelling, resource is %s",
			core.ErrInvalidTransition, record.State)
	}

	uid, err := p.ids.LookupUID(ctx, url)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownResource, url)
	}

	if err := p.checkStatementCount(ctx, url, len(statementVectors)); err != nil {
		return err
	}

	pv := normalizedCopy(pageVector)
	if err := core.ValidateVector(pv); err != nil {
		return err
	}
	svs := make([][]float32, len(statementVectors))
	for i, v := range statementVectors {
		svs[i] = normalizedCopy(v)
		if err := core.ValidateVector(svs[i]); err != nil {
			return fmt.Errorf("statement %d: %w", i, err)
		}
	}

	// Embedding records route by uid, not URL.
	uidKey := make([]byte, 8)
	binary.BigEndian.PutUint64(uidKey, uint64(uid))
	uidStore := p.stores[p.router.OfUID(uint64(uid))]

	pageRecord := &core.EmbeddingRecord{Vector: pv}
	if err := uidStore.Put(ctx, storage.TypePageEmbedding, uidKey, storage.MarshalEmbeddingRecord(pageRecord)); err != nil {
		return err
	}
	if len(svs) > 0 {
		stmtRecord := &core.StatementVectorsRecord{Base: base, Vectors: svs}
		if err := uidStore.Put(ctx, storage.TypeStatementVectors, uidKey, storage.MarshalStatementVectorsRecord(stmtRecord)); err != nil {
			return err
		}
	}

	if err := p.insertVectors(uint64(uid), uint64(base), pv, svs); err != nil {
		return err
	}
	p.logger.Debug("embeddings indexed", "url", url, "uid", uint64(uid), "statements", len(svs))
	return nil
}

// insertVectors pushes the page and statement vectors into their shard
// graphs through the worker pool.
func (p *Pipeline) insertVectors(uid, base uint64, pageVector []float32, statementVectors [][]float32) error {
	type insertion struct {
		shard       int
		granularity core.Granularity
		id          uint64
		vector      []float32
	}

	inserts := make([]insertion, 0, 1+len(statementVectors))
	inserts = append(inserts, insertion{
		shard:       p.router.OfUID(uid),
		granularity: core.GranularityPage,
		id:          uid,
		vector:      pageVector,
	})
	for i, v := range statementVectors {
		sid := base + uint64(i)
		inserts = append(inserts, insertion{
			shard:       p.router.OfUID(sid),
			granularity: core.GranularityStatement,
			id:          sid,
			vector:      v,
		})
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(inserts))
	for _, ins := range inserts {
		ins := ins
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			if err := p.set.Insert(ins.shard, ins.granularity, ins.id, ins.vector); err != nil {
				errs <- fmt.Errorf("inserting %s vector %d: %w", ins.granularity, ins.id, err)
			}
		})
		if err != nil {
			wg.Done()
			return err
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		return err
	}
	return nil
}

// checkStatementCount verifies the supplied vector count against the stored
// document record. A resource with no document record accepts only zero
// statement vectors.
func (p *Pipeline) checkStatementCount(ctx context.Context, url string, vectors int) error {
	data, err := p.store(url).Get(ctx, storage.TypeDocument, []byte(url))
	if errors.Is(err, storage.ErrNotFound) {
		if vectors != 0 {
			return fmt.Errorf("%w: %d vectors, no document", ErrVectorCountMismatch, vectors)
		}
		return nil
	}
	if err != nil {
		return err
	}
	doc, err := storage.UnmarshalDocumentRecord(data)
	if err != nil {
		return err
	}
	if len(doc.Statements) != vectors {
		return fmt.Errorf("%w: %d vectors, %d statements",
			ErrVectorCountMismatch, vectors, len(doc.Statements))
	}
	return nil
}

func normalizedCopy(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return core.Normalize(out)
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
