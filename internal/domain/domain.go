package domain

import "errors"

var (
	// ErrInvalidInput marks an empty or malformed asset key or list.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound means no provider had data for the asset.
	ErrNotFound = errors.New("not found")
	// ErrUpstreamTransient covers timeouts, rate limits and 5xx responses.
	ErrUpstreamTransient = errors.New("upstream transient failure")
	// ErrUpstreamMalformed covers undecodable or incomplete upstream bodies.
	ErrUpstreamMalformed = errors.New("upstream malformed response")
	// ErrCacheWriteRejected is returned when a tuple fails cache validation.
	ErrCacheWriteRejected = errors.New("cache write rejected")
)

// FailureReason is the human-readable tag attached to an unresolved asset.
type FailureReason string

const (
	ReasonNotFound      FailureReason = "not found"
	ReasonUpstreamError FailureReason = "upstream error"
	ReasonInvalidInput  FailureReason = "invalid input"
	ReasonCancelled     FailureReason = "cancelled"
	ReasonInternal      FailureReason = "internal error"
)

// ResolutionStatus is the terminal state of a single-asset resolution.
type ResolutionStatus string

const (
	StatusResolved ResolutionStatus = "resolved"
	StatusNotFound ResolutionStatus = "not_found"
)

// Source records where a resolved price came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourcePrimary  Source = "coingecko"
	SourceFallback Source = "messari"
)

// Resolution is the outcome of resolving one asset: either Resolved with a
// record or NotFound with a reason.
type Resolution struct {
	Status ResolutionStatus
	Record PriceRecord
	Source Source
	Reason FailureReason
	Detail string
}

// Resolved builds a successful outcome.
func Resolved(record PriceRecord, source Source) Resolution {
	return Resolution{Status: StatusResolved, Record: record, Source: source}
}

// NotFound builds a failed outcome.
func NotFound(reason FailureReason, detail string) Resolution {
	return Resolution{Status: StatusNotFound, Reason: reason, Detail: detail}
}

// OK reports whether the resolution produced a record.
func (r Resolution) OK() bool {
	return r.Status == StatusResolved
}

// Failure is one permanently failed asset of a batch.
type Failure struct {
	Asset  string        `json:"asset"`
	Reason FailureReason `json:"reason"`
	Detail string        `json:"detail,omitempty"`
}

// BatchResult is the output of a batch resolution. Prices is keyed by the
// original asset key.
type BatchResult struct {
	Prices   map[string]PriceRecord
	Failures []Failure
}
