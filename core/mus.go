// Copyright 2026 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

// MUS serializers for every stored record type. These are written by hand
// against the mus-go primitive serializers: the resource record is a
// state-tagged union whose wire shape depends on the state byte, which a
// struct generator cannot derive. The state tag is written first and selects
// the detail variant on both ends.

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// Element serializers shared by the record serializers below.
var (
	byteSliceMUS   = ord.NewSliceSer[byte](raw.Byte)
	stringSliceMUS = ord.NewSliceSer[string](ord.String)
	intSliceMUS    = ord.NewSliceSer[int](varint.Int)
	vectorMUS      = ord.NewSliceSer[float32](raw.Float32)
	vectorsMUS     = ord.NewSliceSer[[]float32](vectorMUS)
)

// unmarshalSlice decodes a slice and maps zero length back to nil. The
// slice serializers allocate an empty slice for a zero-length value, so a
// nil field would otherwise come back non-nil and records would not
// round-trip losslessly.
func unmarshalSlice[T any](unmarshal func([]byte) ([]T, int, error), bs []byte) ([]T, int, error) {
	v, n, err := unmarshal(bs)
	if len(v) == 0 {
		v = nil
	}
	return v, n, err
}

// Exported serializers, one per stored type.
var (
	UIDMUS                    = uidSer{}
	ResourceRecordMUS         = resourceRecordSer{}
	LinkRecordMUS             = linkRecordSer{}
	MetaRecordMUS             = metaRecordSer{}
	BodyRecordMUS             = bodyRecordSer{}
	SourceRecordMUS           = sourceRecordSer{}
	DocumentRecordMUS         = documentRecordSer{}
	EmbeddingRecordMUS        = embeddingRecordSer{}
	StatementVectorsRecordMUS = statementVectorsRecordSer{}
	StatementRangeMUS         = statementRangeSer{}
	CheckpointMUS             = checkpointSer{}
)

// uidSer serializes a UID.
type uidSer struct{}

func (uidSer) Marshal(id UID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(id), bs)
}

func (uidSer) Unmarshal(bs []byte) (UID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return UID(v), n, err
}

func (uidSer) Size(id UID) int {
	return varint.Uint64.Size(uint64(id))
}

// Timestamps are stored as microseconds since the Unix epoch.

func marshalTime(t time.Time, bs []byte) int {
	return varint.Int64.Marshal(t.UnixMicro(), bs)
}

func unmarshalTime(bs []byte) (time.Time, int, error) {
	v, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	return time.UnixMicro(v).UTC(), n, nil
}

func sizeTime(t time.Time) int {
	return varint.Int64.Size(t.UnixMicro())
}

// resourceRecordSer serializes a ResourceRecord. The state value selects the
// detail variant; Fetching has none.
type resourceRecordSer struct{}

func (s resourceRecordSer) Marshal(r ResourceRecord, bs []byte) (n int) {
	n = varint.Int.Marshal(int(r.State), bs)
	n += marshalTime(r.LastFetchTime, bs[n:])
	n += varint.Uint64.Marshal(r.LastFetchID, bs[n:])
	switch d := r.Detail.(type) {
	case nil:
	case PageDetail:
		n += varint.Int.Marshal(d.HTTPStatus, bs[n:])
		n += ord.String.Marshal(d.ContentEncoding, bs[n:])
		n += ord.String.Marshal(d.Title, bs[n:])
		n += ord.String.Marshal(d.IconURL, bs[n:])
		n += stringSliceMUS.Marshal(d.UnrecognizedMarkup, bs[n:])
	case RedirectDetail:
		n += ord.String.Marshal(d.Location, bs[n:])
	case BadStatusDetail:
		n += varint.Int.Marshal(d.HTTPStatus, bs[n:])
	case FetchFailureDetail:
		n += ord.String.Marshal(d.Error, bs[n:])
		n += ord.String.Marshal(d.ErrorDetails, bs[n:])
	case ParseFailureDetail:
		n += ord.String.Marshal(d.Error, bs[n:])
		n += stringSliceMUS.Marshal(d.UnrecognizedMarkup, bs[n:])
	case DecompressFailureDetail:
		n += ord.String.Marshal(d.ContentEncoding, bs[n:])
		n += ord.String.Marshal(d.Error, bs[n:])
	}
	return n
}

func (s resourceRecordSer) Unmarshal(bs []byte) (r ResourceRecord, n int, err error) {
	var (
		n1 int
		st int
	)
	st, n, err = varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	r.State = ResourceState(st)
	r.LastFetchTime, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return
	}
	r.LastFetchID, n1, err = varint.Uint64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	switch r.State {
	case StateFetching:
		// No detail.
	case StateParsing, StateLabelling:
		var d PageDetail
		d.HTTPStatus, n1, err = varint.Int.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		d.ContentEncoding, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		d.Title, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		d.IconURL, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		d.UnrecognizedMarkup, n1, err = unmarshalSlice(stringSliceMUS.Unmarshal, bs[n:])
		n += n1
		if err != nil {
			return
		}
		r.Detail = d
	case StateRedirected:
		var d RedirectDetail
		d.Location, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		r.Detail = d
	case StateBadStatus:
		var d BadStatusDetail
		d.HTTPStatus, n1, err = varint.Int.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		r.Detail = d
	case StateFetchError:
		var d FetchFailureDetail
		d.Error, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		d.ErrorDetails, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		r.Detail = d
	case StateParseError:
		var d ParseFailureDetail
		d.Error, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		d.UnrecognizedMarkup, n1, err = unmarshalSlice(stringSliceMUS.Unmarshal, bs[n:])
		n += n1
		if err != nil {
			return
		}
		r.Detail = d
	case StateDecompressError:
		var d DecompressFailureDetail
		d.ContentEncoding, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		d.Error, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		r.Detail = d
	default:
		err = fmt.Errorf("%w: value %d", ErrInvalidState, st)
	}
	return
}

func (s resourceRecordSer) Size(r ResourceRecord) (size int) {
	size = varint.Int.Size(int(r.State))
	size += sizeTime(r.LastFetchTime)
	size += varint.Uint64.Size(r.LastFetchID)
	switch d := r.Detail.(type) {
	case nil:
	case PageDetail:
		size += varint.Int.Size(d.HTTPStatus)
		size += ord.String.Size(d.ContentEncoding)
		size += ord.String.Size(d.Title)
		size += ord.String.Size(d.IconURL)
		size += stringSliceMUS.Size(d.UnrecognizedMarkup)
	case RedirectDetail:
		size += ord.String.Size(d.Location)
	case BadStatusDetail:
		size += varint.Int.Size(d.HTTPStatus)
	case FetchFailureDetail:
		size += ord.String.Size(d.Error)
		size += ord.String.Size(d.ErrorDetails)
	case ParseFailureDetail:
		size += ord.String.Size(d.Error)
		size += stringSliceMUS.Size(d.UnrecognizedMarkup)
	case DecompressFailureDetail:
		size += ord.String.Size(d.ContentEncoding)
		size += ord.String.Size(d.Error)
	}
	return size
}

// linkRecordSer serializes a LinkRecord.
type linkRecordSer struct{}

func (linkRecordSer) Marshal(r LinkRecord, bs []byte) int {
	return stringSliceMUS.Marshal(r.Targets, bs)
}

func (linkRecordSer) Unmarshal(bs []byte) (r LinkRecord, n int, err error) {
	r.Targets, n, err = unmarshalSlice(stringSliceMUS.Unmarshal, bs)
	return
}

func (linkRecordSer) Size(r LinkRecord) int {
	return stringSliceMUS.Size(r.Targets)
}

// metaRecordSer serializes a MetaRecord.
type metaRecordSer struct{}

func (metaRecordSer) Marshal(r MetaRecord, bs []byte) (n int) {
	n = varint.Int.Marshal(len(r.Tags), bs)
	for _, tag := range r.Tags {
		n += ord.String.Marshal(tag.Name, bs[n:])
		n += ord.String.Marshal(tag.Content, bs[n:])
	}
	return
}

func (metaRecordSer) Unmarshal(bs []byte) (r MetaRecord, n int, err error) {
	var (
		count int
		n1    int
	)
	count, n, err = varint.Int.Unmarshal(bs)
	if err != nil || count == 0 {
		return
	}
	r.Tags = make([]MetaTag, count)
	for i := 0; i < count; i++ {
		r.Tags[i].Name, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		r.Tags[i].Content, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

func (metaRecordSer) Size(r MetaRecord) (size int) {
	size = varint.Int.Size(len(r.Tags))
	for _, tag := range r.Tags {
		size += ord.String.Size(tag.Name)
		size += ord.String.Size(tag.Content)
	}
	return
}

// bodyRecordSer serializes a BodyRecord.
type bodyRecordSer struct{}

func (bodyRecordSer) Marshal(r BodyRecord, bs []byte) (n int) {
	n = varint.Int.Marshal(len(r.Nodes), bs)
	for _, node := range r.Nodes {
		n += varint.Int.Marshal(node.Depth, bs[n:])
		n += ord.String.Marshal(node.Tag, bs[n:])
		n += ord.String.Marshal(node.Text, bs[n:])
	}
	return
}

func (bodyRecordSer) Unmarshal(bs []byte) (r BodyRecord, n int, err error) {
	var (
		count int
		n1    int
	)
	count, n, err = varint.Int.Unmarshal(bs)
	if err != nil || count == 0 {
		return
	}
	r.Nodes = make([]BodyNode, count)
	for i := 0; i < count; i++ {
		r.Nodes[i].Depth, n1, err = varint.Int.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		r.Nodes[i].Tag, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		r.Nodes[i].Text, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

func (bodyRecordSer) Size(r BodyRecord) (size int) {
	size = varint.Int.Size(len(r.Nodes))
	for _, node := range r.Nodes {
		size += varint.Int.Size(node.Depth)
		size += ord.String.Size(node.Tag)
		size += ord.String.Size(node.Text)
	}
	return
}

// sourceRecordSer serializes a SourceRecord.
type sourceRecordSer struct{}

func (sourceRecordSer) Marshal(r SourceRecord, bs []byte) (n int) {
	n = varint.Uint64.Marshal(r.Digest, bs)
	n += ord.String.Marshal(r.ContentType, bs[n:])
	n += byteSliceMUS.Marshal(r.Body, bs[n:])
	return
}

func (sourceRecordSer) Unmarshal(bs []byte) (r SourceRecord, n int, err error) {
	var n1 int
	r.Digest, n, err = varint.Uint64.Unmarshal(bs)
	if err != nil {
		return
	}
	r.ContentType, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	r.Body, n1, err = unmarshalSlice(byteSliceMUS.Unmarshal, bs[n:])
	n += n1
	return
}

func (sourceRecordSer) Size(r SourceRecord) int {
	return varint.Uint64.Size(r.Digest) + ord.String.Size(r.ContentType) + byteSliceMUS.Size(r.Body)
}

// documentRecordSer serializes a DocumentRecord.
type documentRecordSer struct{}

func (documentRecordSer) Marshal(r DocumentRecord, bs []byte) (n int) {
	n = varint.Int.Marshal(len(r.Headings), bs)
	for _, h := range r.Headings {
		n += varint.Int.Marshal(h.Level, bs[n:])
		n += ord.String.Marshal(h.Text, bs[n:])
	}
	n += varint.Int.Marshal(len(r.Statements), bs[n:])
	for _, st := range r.Statements {
		n += ord.String.Marshal(st.Text, bs[n:])
		n += ord.String.Marshal(st.Path, bs[n:])
		n += intSliceMUS.Marshal(st.HeadingRefs, bs[n:])
		n += intSliceMUS.Marshal(st.ContextWindow, bs[n:])
		n += varint.Int.Marshal(int(st.Kind), bs[n:])
	}
	return
}

func (documentRecordSer) Unmarshal(bs []byte) (r DocumentRecord, n int, err error) {
	var (
		count int
		n1    int
	)
	count, n, err = varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	if count > 0 {
		r.Headings = make([]Heading, count)
		for i := 0; i < count; i++ {
			r.Headings[i].Level, n1, err = varint.Int.Unmarshal(bs[n:])
			n += n1
			if err != nil {
				return
			}
			r.Headings[i].Text, n1, err = ord.String.Unmarshal(bs[n:])
			n += n1
			if err != nil {
				return
			}
		}
	}
	count, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil || count == 0 {
		return
	}
	r.Statements = make([]Statement, count)
	for i := 0; i < count; i++ {
		st := &r.Statements[i]
		st.Text, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		st.Path, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		st.HeadingRefs, n1, err = unmarshalSlice(intSliceMUS.Unmarshal, bs[n:])
		n += n1
		if err != nil {
			return
		}
		st.ContextWindow, n1, err = unmarshalSlice(intSliceMUS.Unmarshal, bs[n:])
		n += n1
		if err != nil {
			return
		}
		var kind int
		kind, n1, err = varint.Int.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		st.Kind = StatementKind(kind)
	}
	return
}

func (documentRecordSer) Size(r DocumentRecord) (size int) {
	size = varint.Int.Size(len(r.Headings))
	for _, h := range r.Headings {
		size += varint.Int.Size(h.Level)
		size += ord.String.Size(h.Text)
	}
	size += varint.Int.Size(len(r.Statements))
	for _, st := range r.Statements {
		size += ord.String.Size(st.Text)
		size += ord.String.Size(st.Path)
		size += intSliceMUS.Size(st.HeadingRefs)
		size += intSliceMUS.Size(st.ContextWindow)
		size += varint.Int.Size(int(st.Kind))
	}
	return
}

// embeddingRecordSer serializes an EmbeddingRecord.
type embeddingRecordSer struct{}

func (embeddingRecordSer) Marshal(r EmbeddingRecord, bs []byte) int {
	return vectorMUS.Marshal(r.Vector, bs)
}

func (embeddingRecordSer) Unmarshal(bs []byte) (r EmbeddingRecord, n int, err error) {
	r.Vector, n, err = unmarshalSlice(vectorMUS.Unmarshal, bs)
	return
}

func (embeddingRecordSer) Size(r EmbeddingRecord) int {
	return vectorMUS.Size(r.Vector)
}

// statementVectorsRecordSer serializes a StatementVectorsRecord.
type statementVectorsRecordSer struct{}

func (statementVectorsRecordSer) Marshal(r StatementVectorsRecord, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(r.Base), bs)
	n += vectorsMUS.Marshal(r.Vectors, bs[n:])
	return
}

func (statementVectorsRecordSer) Unmarshal(bs []byte) (r StatementVectorsRecord, n int, err error) {
	var (
		base uint64
		n1   int
	)
	base, n, err = varint.Uint64.Unmarshal(bs)
	if err != nil {
		return
	}
	r.Base = StatementUID(base)
	r.Vectors, n1, err = unmarshalSlice(vectorsMUS.Unmarshal, bs[n:])
	n += n1
	return
}

func (statementVectorsRecordSer) Size(r StatementVectorsRecord) int {
	return varint.Uint64.Size(uint64(r.Base)) + vectorsMUS.Size(r.Vectors)
}

// statementRangeSer serializes a StatementRange.
type statementRangeSer struct{}

func (statementRangeSer) Marshal(r StatementRange, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(r.Owner), bs)
	n += varint.Int.Marshal(r.Count, bs[n:])
	return
}

func (statementRangeSer) Unmarshal(bs []byte) (r StatementRange, n int, err error) {
	var (
		owner uint64
		n1    int
	)
	owner, n, err = varint.Uint64.Unmarshal(bs)
	if err != nil {
		return
	}
	r.Owner = UID(owner)
	r.Count, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	return
}

func (statementRangeSer) Size(r StatementRange) int {
	return varint.Uint64.Size(uint64(r.Owner)) + varint.Int.Size(r.Count)
}

// checkpointSer serializes a Checkpoint.
type checkpointSer struct{}

func (checkpointSer) Marshal(c Checkpoint, bs []byte) (n int) {
	n = varint.Int.Marshal(c.Shard, bs)
	n += byteSliceMUS.Marshal(c.LastKey, bs[n:])
	n += marshalTime(c.UpdatedAt, bs[n:])
	return
}

func (checkpointSer) Unmarshal(bs []byte) (c Checkpoint, n int, err error) {
	var n1 int
	c.Shard, n, err = varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	c.LastKey, n1, err = unmarshalSlice(byteSliceMUS.Unmarshal, bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.UpdatedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	return
}

func (checkpointSer) Size(c Checkpoint) int {
	return varint.Int.Size(c.Shard) + byteSliceMUS.Size(c.LastKey) + sizeTime(c.UpdatedAt)
}
