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

import "errors"

// Domain validation errors
var (
	// ErrInvalidResourceRecord indicates a ResourceRecord failed validation.
	ErrInvalidResourceRecord = errors.New("invalid resource record")

	// ErrInvalidState indicates an undefined ResourceState value.
	ErrInvalidState = errors.New("invalid resource state")

	// ErrInvalidTransition indicates a state transition the machine forbids.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrDetailMismatch indicates a detail variant that is illegal for the
	// record's state.
	ErrDetailMismatch = errors.New("detail does not match state")

	// ErrDimensionMismatch indicates a vector of the wrong dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrNotNormalized indicates a vector that is not L2-normalized.
	ErrNotNormalized = errors.New("vector is not L2-normalized")

	// ErrInvalidDocument indicates a DocumentRecord failed validation.
	ErrInvalidDocument = errors.New("invalid document record")

	// ErrInvalidStatementRef indicates a heading or context-window index
	// outside the owning record.
	ErrInvalidStatementRef = errors.New("statement reference out of range")
)
