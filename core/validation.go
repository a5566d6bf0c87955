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

import "fmt"

// ValidateResourceRecord validates a ResourceRecord according to domain rules.
//
// Validation rules:
//   - State must be a defined state
//   - Detail variant must be the one legal for the state
//
// NOT validated (populated by the fetch pipeline):
//   - LastFetchTime / LastFetchID (zero until the first fetch completes)
func ValidateResourceRecord(record *ResourceRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidResourceRecord)
	}

	if !record.State.Valid() {
		return fmt.Errorf("%w: %w: value %d", ErrInvalidResourceRecord, ErrInvalidState, record.State)
	}

	if !DetailFor(record.State, record.Detail) {
		return fmt.Errorf("%w: %w: state %s", ErrInvalidResourceRecord, ErrDetailMismatch, record.State)
	}

	return nil
}

// ValidateVector validates that v is a usable query or embedding vector:
// the deployment dimension and L2-normalized.
func ValidateVector(v []float32) error {
	if len(v) != Dim {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, Dim, len(v))
	}
	if !IsNormalized(v) {
		return ErrNotNormalized
	}
	return nil
}

// ValidateDocumentRecord validates a DocumentRecord according to domain rules.
//
// Validation rules:
//   - Every heading ref must index into Headings
//   - Every context-window ref must index into Statements (same record only)
//   - Every statement kind must be defined
func ValidateDocumentRecord(doc *DocumentRecord) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	for i, st := range doc.Statements {
		if st.Kind < StatementText || st.Kind > StatementQuote {
			return fmt.Errorf("%w: statement %d: unknown kind %d", ErrInvalidDocument, i, st.Kind)
		}
		for _, ref := range st.HeadingRefs {
			if ref < 0 || ref >= len(doc.Headings) {
				return fmt.Errorf("%w: statement %d: heading ref %d", ErrInvalidStatementRef, i, ref)
			}
		}
		for _, ref := range st.ContextWindow {
			if ref < 0 || ref >= len(doc.Statements) {
				return fmt.Errorf("%w: statement %d: context ref %d", ErrInvalidStatementRef, i, ref)
			}
		}
	}

	return nil
}
