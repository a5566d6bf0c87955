package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// UID is a 64-bit resource identifier. It is assigned once at first
// observation of a URL and never reused or reassigned.
type UID uint64

// StatementUID identifies one statement of one resource. It is the
// resource's statement base plus the statement's index within the
// resource's document record.
type StatementUID uint64

// Granularity selects which embedding scope a query runs against.
type Granularity int

const (
	// GranularityPage queries the one mean-pooled vector per page.
	GranularityPage Granularity = iota + 1
	// GranularityStatement queries the per-statement vectors.
	GranularityStatement
)

func (g Granularity) String() string {
	switch g {
	case GranularityPage:
		return "page"
	case GranularityStatement:
		return "statement"
	default:
		return "unknown"
	}
}

// DigestOf generates a deterministic 64-bit digest of content using BLAKE2b.
// Identical content always produces the identical digest.
func DigestOf(data []byte) uint64 {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write(data)
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum)
}

// ResourceRecord is the primary record for one page. The State tag
// determines which Detail variant is present; fields of other variants
// are never populated.
type ResourceRecord struct {
	State         ResourceState
	LastFetchTime time.Time // When the page was last fetched
	LastFetchID   uint64    // Digest identifying the fetch that produced this record
	Detail        ResourceDetail
}

// ResourceDetail is the per-state payload of a ResourceRecord.
// Exactly one concrete type is legal for each state; see DetailFor.
type ResourceDetail interface {
	resourceDetail()
}

// PageDetail accompanies the Parsing and Labelling states.
type PageDetail struct {
	HTTPStatus         int
	ContentEncoding    string
	Title              string
	IconURL            string
	UnrecognizedMarkup []string // Markup element names the normalizer did not recognize
}

// RedirectDetail accompanies the Redirected terminal state.
type RedirectDetail struct {
	Location string
}

// BadStatusDetail accompanies the BadStatus terminal state.
type BadStatusDetail struct {
	HTTPStatus int
}

// FetchFailureDetail accompanies the FetchError terminal state.
type FetchFailureDetail struct {
	Error        string
	ErrorDetails string
}

// ParseFailureDetail accompanies the ParseError terminal state.
type ParseFailureDetail struct {
	Error              string
	UnrecognizedMarkup []string
}

// DecompressFailureDetail accompanies the DecompressError terminal state.
type DecompressFailureDetail struct {
	ContentEncoding string
	Error           string
}

func (PageDetail) resourceDetail()              {}
func (RedirectDetail) resourceDetail()          {}
func (BadStatusDetail) resourceDetail()         {}
func (FetchFailureDetail) resourceDetail()      {}
func (ParseFailureDetail) resourceDetail()      {}
func (DecompressFailureDetail) resourceDetail() {}

// Page returns the PageDetail if the record is in a state that carries one.
func (r *ResourceRecord) Page() (PageDetail, bool) {
	if r.State != StateParsing && r.State != StateLabelling {
		return PageDetail{}, false
	}
	d, ok := r.Detail.(PageDetail)
	return d, ok
}

// Redirect returns the RedirectDetail for a Redirected record.
func (r *ResourceRecord) Redirect() (RedirectDetail, bool) {
	if r.State != StateRedirected {
		return RedirectDetail{}, false
	}
	d, ok := r.Detail.(RedirectDetail)
	return d, ok
}

// Title returns the page title, or "" if the record's state carries none.
func (r *ResourceRecord) Title() string {
	if d, ok := r.Page(); ok {
		return d.Title
	}
	return ""
}

// LinkRecord holds a page's outbound links in document order.
type LinkRecord struct {
	Targets []string
}

// MetaTag is one page meta tag.
type MetaTag struct {
	Name    string
	Content string
}

// MetaRecord holds a page's meta tags.
type MetaRecord struct {
	Tags []MetaTag
}

// BodyNode is one node of the normalized document structure, stored as a
// pre-order flattening with depth.
type BodyNode struct {
	Depth int
	Tag   string
	Text  string
}

// BodyRecord holds the normalized document structure.
type BodyRecord struct {
	Nodes []BodyNode
}

// SourceRecord holds the original source bytes of a page.
type SourceRecord struct {
	Digest      uint64 // DigestOf(Body)
	ContentType string
	Body        []byte
}

// StatementKind classifies a statement unit.
type StatementKind int

const (
	StatementText StatementKind = iota + 1
	StatementTableRow
	StatementOrderedListItem
	StatementCodeBlock
	StatementQuote
)

// Heading is one heading entry of a document record.
type Heading struct {
	Level int
	Text  string
}

// Statement is one sub-document unit. HeadingRefs index into the owning
// DocumentRecord's Headings; ContextWindow holds indices of other statements
// in the same record. Both are plain indices, never cross-record references.
type Statement struct {
	Text          string
	Path          string // Structural path within the normalized document
	HeadingRefs   []int
	ContextWindow []int
	Kind          StatementKind
}

// DocumentRecord holds the ordered headings and statements extracted from
// one page. The i-th statement has identifier base+i, where base is the
// statement uid base allocated for the resource at label time.
type DocumentRecord struct {
	Headings   []Heading
	Statements []Statement
}

// EmbeddingRecord holds the mean-pooled page-level vector of one resource.
// The vector is L2-normalized by the producer.
type EmbeddingRecord struct {
	Vector []float32
}

// StatementVectorsRecord holds the per-statement vectors of one resource.
// Vectors[i] belongs to statement uid Base+i.
type StatementVectorsRecord struct {
	Base    StatementUID
	Vectors [][]float32
}

// StatementRange records the statement-uid range owned by one resource:
// statements Base..Base+Count-1 belong to Owner, where Base is the key the
// range is stored under.
type StatementRange struct {
	Owner UID
	Count int
}

// Checkpoint records progress of a long-running maintenance scan, keyed by
// the processor that owns it.
type Checkpoint struct {
	Shard     int
	LastKey   []byte
	UpdatedAt time.Time
}

// Hit is one scored match from a vector index. ID is a resource uid for the
// page granularity and a statement uid for the statement granularity.
type Hit struct {
	ID    uint64
	Score float32
}
