package ingest

import (
	"context"
	"encoding/binary"
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
	stores   []storage.RecordStore
	ids      storage.IdentifierService
	set      *index.Set
	router   *shard.Router
	pipeline *Pipeline
	rng      *rand.Rand
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

	set := index.NewSet(shards, core.Dim, index.WithSeed(9))

	pipeline, err := NewPipeline(stores, ids, set)
	require.NoError(t, err)
	t.Cleanup(pipeline.Release)

	return &fixture{
		stores:   stores,
		ids:      ids,
		set:      set,
		router:   shard.NewRouter(shards),
		pipeline: pipeline,
		rng:      rand.New(rand.NewSource(9)),
	}
}

func (f *fixture) randVector() []float32 {
	v := make([]float32, core.Dim)
	for i := range v {
		v[i] = float32(f.rng.NormFloat64())
	}
	return core.Normalize(v)
}

func (f *fixture) getResource(t *testing.T, url string) *core.ResourceRecord {
	t.Helper()
	store := f.stores[f.router.OfString(url)]
	data, err := store.Get(context.Background(), storage.TypeResource, []byte(url))
	require.NoError(t, err)
	record, err := storage.UnmarshalResourceRecord(data)
	require.NoError(t, err)
	return record
}

func testDocument(statements int) *core.DocumentRecord {
	doc := &core.DocumentRecord{
		Headings: []core.Heading{{Level: 1, Text: "Heading"}},
	}
	for i := 0; i < statements; i++ {
		doc.Statements = append(doc.Statements, core.Statement{
			Text:        "statement",
			Path:        "body/p",
			HeadingRefs: []int{0},
			Kind:        core.StatementText,
		})
	}
	return doc
}

func TestBeginFetch(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()

	uid, err := f.pipeline.BeginFetch(ctx, "https://example.com/a", time.Now())
	require.NoError(t, err)
	require.NotZero(t, uid)

	record := f.getResource(t, "https://example.com/a")
	assert.Equal(t, core.StateFetching, record.State)
	assert.Nil(t, record.Detail)
	assert.NotZero(t, record.LastFetchID)

	// Refetch restarts the lifecycle under the same uid.
	again, err := f.pipeline.BeginFetch(ctx, "https://example.com/a", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, uid, again)
}

func TestBeginFetchRejectsTerminalResource(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()

	_, err := f.pipeline.BeginFetch(ctx, "https://example.com/gone", time.Now())
	require.NoError(t, err)
	require.NoError(t, f.pipeline.MarkBadStatus(ctx, "https://example.com/gone", 404))

	_, err = f.pipeline.BeginFetch(ctx, "https://example.com/gone", time.Now())
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestMarkTerminalStates(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()

	cases := []struct {
		name  string
		url   string
		mark  func(url string) error
		state core.ResourceState
		check func(t *testing.T, record *core.ResourceRecord)
	}{
		{
			name:  "redirected",
			url:   "https://example.com/redir",
			mark:  func(url string) error { return f.pipeline.MarkRedirected(ctx, url, "https://example.com/target") },
			state: core.StateRedirected,
			check: func(t *testing.T, record *core.ResourceRecord) {
				detail, ok := record.Redirect()
				require.True(t, ok)
				assert.Equal(t, "https://example.com/target", detail.Location)
			},
		},
		{
			name:  "bad status",
			url:   "https://example.com/missing",
			mark:  func(url string) error { return f.pipeline.MarkBadStatus(ctx, url, 410) },
			state: core.StateBadStatus,
			check: func(t *testing.T, record *core.ResourceRecord) {
				assert.Equal(t, core.BadStatusDetail{HTTPStatus: 410}, record.Detail)
			},
		},
		{
			name:  "fetch error",
			url:   "https://example.com/refused",
			mark:  func(url string) error { return f.pipeline.MarkFetchError(ctx, url, "dial", "connection refused") },
			state: core.StateFetchError,
			check: func(t *testing.T, record *core.ResourceRecord) {
				assert.Equal(t, core.FetchFailureDetail{Error: "dial", ErrorDetails: "connection refused"}, record.Detail)
			},
		},
		{
			name:  "parse error",
			url:   "https://example.com/mangled",
			mark:  func(url string) error { return f.pipeline.MarkParseError(ctx, url, "truncated", []string{"foo"}) },
			state: core.StateParseError,
			check: func(t *testing.T, record *core.ResourceRecord) {
				assert.Equal(t, core.ParseFailureDetail{Error: "truncated", UnrecognizedMarkup: []string{"foo"}}, record.Detail)
			},
		},
		{
			name:  "decompress error",
			url:   "https://example.com/br",
			mark:  func(url string) error { return f.pipeline.MarkDecompressError(ctx, url, "br", "bad stream") },
			state: core.StateDecompressError,
			check: func(t *testing.T, record *core.ResourceRecord) {
				assert.Equal(t, core.DecompressFailureDetail{ContentEncoding: "br", Error: "bad stream"}, record.Detail)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.pipeline.BeginFetch(ctx, tc.url, time.Now())
			require.NoError(t, err)
			require.NoError(t, tc.mark(tc.url))

			record := f.getResource(t, tc.url)
			assert.Equal(t, tc.state, record.State)
			tc.check(t, record)

			// Terminal states have no outgoing transitions.
			err = f.pipeline.MarkBadStatus(ctx, tc.url, 500)
			assert.ErrorIs(t, err, core.ErrInvalidTransition)
		})
	}
}

func TestMarkUnknownResource(t *testing.T) {
	f := newFixture(t, 4)

	err := f.pipeline.MarkBadStatus(context.Background(), "https://example.com/never", 404)
	assert.ErrorIs(t, err, ErrUnknownResource)
}

func TestApplyParsed(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	url := "https://example.com/parsed"

	_, err := f.pipeline.BeginFetch(ctx, url, time.Now())
	require.NoError(t, err)

	body := []byte("<html><body>hello</body></html>")
	err = f.pipeline.ApplyParsed(ctx, url, Parsed{
		Page:   core.PageDetail{HTTPStatus: 200, Title: "Hello", ContentEncoding: "gzip"},
		Links:  &core.LinkRecord{Targets: []string{"https://example.com/next"}},
		Meta:   &core.MetaRecord{Tags: []core.MetaTag{{Name: "description", Content: "greeting"}}},
		Body:   &core.BodyRecord{Nodes: []core.BodyNode{{Depth: 0, Tag: "p", Text: "hello"}}},
		Source: &core.SourceRecord{Digest: core.DigestOf(body), ContentType: "text/html", Body: body},
	})
	require.NoError(t, err)

	record := f.getResource(t, url)
	assert.Equal(t, core.StateParsing, record.State)
	assert.Equal(t, "Hello", record.Title())

	store := f.stores[f.router.OfString(url)]

	data, err := store.Get(ctx, storage.TypeLinks, []byte(url))
	require.NoError(t, err)
	links, err := storage.UnmarshalLinkRecord(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/next"}, links.Targets)

	data, err = store.Get(ctx, storage.TypeSource, []byte(url))
	require.NoError(t, err)
	source, err := storage.UnmarshalSourceRecord(data)
	require.NoError(t, err)
	assert.Equal(t, body, source.Body)
}

func TestApplyParsedUnknownResource(t *testing.T) {
	f := newFixture(t, 4)

	err := f.pipeline.ApplyParsed(context.Background(), "https://example.com/never", Parsed{
		Page: core.PageDetail{HTTPStatus: 200},
	})
	assert.ErrorIs(t, err, ErrUnknownResource)
}

func TestApplyLabelled(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	url := "https://example.com/labelled"

	uid, err := f.pipeline.BeginFetch(ctx, url, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.pipeline.ApplyParsed(ctx, url, Parsed{
		Page: core.PageDetail{HTTPStatus: 200, Title: "Labelled"},
	}))

	base, err := f.pipeline.ApplyLabelled(ctx, url, testDocument(3))
	require.NoError(t, err)
	require.NotZero(t, base)

	record := f.getResource(t, url)
	assert.Equal(t, core.StateLabelling, record.State)
	assert.Equal(t, "Labelled", record.Title(), "page detail survives the labelling transition")

	// The allocated range resolves back to the owner for every statement.
	for i := 0; i < 3; i++ {
		owner, err := f.ids.ResolveStatement(ctx, base+core.StatementUID(i))
		require.NoError(t, err)
		assert.Equal(t, uid, owner)
	}
	_, err = f.ids.ResolveStatement(ctx, base+3)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	data, err := f.stores[f.router.OfString(url)].Get(ctx, storage.TypeDocument, []byte(url))
	require.NoError(t, err)
	doc, err := storage.UnmarshalDocumentRecord(data)
	require.NoError(t, err)
	assert.Len(t, doc.Statements, 3)
}

func TestApplyLabelledEmptyDocument(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	url := "https://example.com/empty"

	_, err := f.pipeline.BeginFetch(ctx, url, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.pipeline.ApplyParsed(ctx, url, Parsed{Page: core.PageDetail{HTTPStatus: 200}}))

	base, err := f.pipeline.ApplyLabelled(ctx, url, &core.DocumentRecord{})
	require.NoError(t, err)
	assert.Zero(t, base)
}

func TestApplyLabelledRequiresParsing(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	url := "https://example.com/unparsed"

	_, err := f.pipeline.BeginFetch(ctx, url, time.Now())
	require.NoError(t, err)

	_, err = f.pipeline.ApplyLabelled(ctx, url, testDocument(1))
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestApplyEmbeddings(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	url := "https://example.com/embedded"

	uid, err := f.pipeline.BeginFetch(ctx, url, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.pipeline.ApplyParsed(ctx, url, Parsed{
		Page: core.PageDetail{HTTPStatus: 200, Title: "Embedded"},
	}))
	base, err := f.pipeline.ApplyLabelled(ctx, url, testDocument(2))
	require.NoError(t, err)

	// Unnormalized inputs are normalized on the way in.
	pageVector := f.randVector()
	for i := range pageVector {
		pageVector[i] *= 3
	}
	statementVectors := [][]float32{f.randVector(), f.randVector()}

	require.NoError(t, f.pipeline.ApplyEmbeddings(ctx, url, base, pageVector, statementVectors))

	// Stored page embedding is unit length.
	uidKey := make([]byte, 8)
	binary.BigEndian.PutUint64(uidKey, uint64(uid))
	uidStore := f.stores[f.router.OfUID(uint64(uid))]
	data, err := uidStore.Get(ctx, storage.TypePageEmbedding, uidKey)
	require.NoError(t, err)
	embedding, err := storage.UnmarshalEmbeddingRecord(data)
	require.NoError(t, err)
	assert.True(t, core.IsNormalized(embedding.Vector))

	data, err = uidStore.Get(ctx, storage.TypeStatementVectors, uidKey)
	require.NoError(t, err)
	stmtVectors, err := storage.UnmarshalStatementVectorsRecord(data)
	require.NoError(t, err)
	assert.Equal(t, base, stmtVectors.Base)
	assert.Len(t, stmtVectors.Vectors, 2)

	// The page vector is queryable at page granularity under the uid.
	hits, err := f.set.Search(ctx, f.router.OfUID(uint64(uid)), core.GranularityPage, embedding.Vector, 1, 50)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, uint64(uid), hits[0].ID)

	// Statement vectors are queryable under base+i.
	sid := uint64(base)
	hits, err = f.set.Search(ctx, f.router.OfUID(sid), core.GranularityStatement, stmtVectors.Vectors[0], 1, 50)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, sid, hits[0].ID)
}

func TestApplyEmbeddingsVectorCountMismatch(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	url := "https://example.com/mismatch"

	_, err := f.pipeline.BeginFetch(ctx, url, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.pipeline.ApplyParsed(ctx, url, Parsed{Page: core.PageDetail{HTTPStatus: 200}}))
	base, err := f.pipeline.ApplyLabelled(ctx, url, testDocument(2))
	require.NoError(t, err)

	err = f.pipeline.ApplyEmbeddings(ctx, url, base, f.randVector(), [][]float32{f.randVector()})
	assert.ErrorIs(t, err, ErrVectorCountMismatch)
}

func TestApplyEmbeddingsRequiresLabelling(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	url := "https://example.com/early"

	_, err := f.pipeline.BeginFetch(ctx, url, time.Now())
	require.NoError(t, err)

	err = f.pipeline.ApplyEmbeddings(ctx, url, 0, f.randVector(), nil)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}
