package core

// ResourceState is the lifecycle state of a resource. Transitions are
// monotonic: Fetching -> Parsing -> Labelling, with terminal failure states
// reachable from any non-terminal state. There is no explicit success state;
// a resource that completes Labelling is observable only through the
// presence of its embedding records and index membership.
type ResourceState int

const (
	// StateFetching is set when the first fetch attempt begins.
	StateFetching ResourceState = iota + 1
	// StateParsing is set once the page body was fetched and decoded.
	StateParsing
	// StateLabelling is set once parsing produced a document record.
	// It is the last non-terminal state.
	StateLabelling
	// StateRedirected terminates resources that answered with a redirect.
	StateRedirected
	// StateBadStatus terminates resources that answered with a non-2xx status.
	StateBadStatus
	// StateFetchError terminates resources whose fetch failed.
	StateFetchError
	// StateParseError terminates resources whose markup could not be parsed.
	StateParseError
	// StateDecompressError terminates resources whose body could not be decoded.
	StateDecompressError
)

func (s ResourceState) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateParsing:
		return "parsing"
	case StateLabelling:
		return "labelling"
	case StateRedirected:
		return "redirected"
	case StateBadStatus:
		return "bad-status"
	case StateFetchError:
		return "fetch-error"
	case StateParseError:
		return "parse-error"
	case StateDecompressError:
		return "decompress-error"
	default:
		return "unknown"
	}
}

// Valid reports whether s is a defined state.
func (s ResourceState) Valid() bool {
	return s >= StateFetching && s <= StateDecompressError
}

// Terminal reports whether s has no outgoing transitions.
func (s ResourceState) Terminal() bool {
	switch s {
	case StateRedirected, StateBadStatus, StateFetchError, StateParseError, StateDecompressError:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the state machine permits moving from s to
// next. Terminal states permit nothing; non-terminal states permit the next
// pipeline stage or any terminal state. A repeated fetch restarts a resource
// at Fetching, which is the one self-transition allowed.
func (s ResourceState) CanTransition(next ResourceState) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s.Terminal() {
		return false
	}
	if next.Terminal() {
		return true
	}
	switch s {
	case StateFetching:
		return next == StateFetching || next == StateParsing
	case StateParsing:
		return next == StateLabelling
	case StateLabelling:
		return false
	default:
		return false
	}
}

// DetailFor returns whether the given detail variant is legal for state s.
// A nil detail is legal only for Fetching.
func DetailFor(s ResourceState, detail ResourceDetail) bool {
	switch s {
	case StateFetching:
		return detail == nil
	case StateParsing, StateLabelling:
		_, ok := detail.(PageDetail)
		return ok
	case StateRedirected:
		_, ok := detail.(RedirectDetail)
		return ok
	case StateBadStatus:
		_, ok := detail.(BadStatusDetail)
		return ok
	case StateFetchError:
		_, ok := detail.(FetchFailureDetail)
		return ok
	case StateParseError:
		_, ok := detail.(ParseFailureDetail)
		return ok
	case StateDecompressError:
		_, ok := detail.(DecompressFailureDetail)
		return ok
	default:
		return false
	}
}
