// Package qr implements query/retrieve orchestration: query templates,
// response aggregation, series grouping, and the retrieval state machine
// that drives two-phase find-then-get workflows against a remote archive.
package qr

import (
	"context"

	"github.com/helioscan/pacsbridge/dicom"
)

// FindResponse is one (status, identifier) pair from a discovery stream.
// Pending responses carry an identifier; terminal ones usually do not.
type FindResponse struct {
	Status     uint16
	Identifier *dicom.Dataset
	// Err is set on the final response when the stream died before its
	// terminal status: a transport failure or a canceled context. The
	// session must be aborted, not released.
	Err error
}

// SubOpCounters mirrors the sub-operation counters a retrieval response
// may carry.
type SubOpCounters struct {
	Remaining int
	Completed int
	Failed    int
	Warning   int
}

// GetResponse is one response from a retrieval stream. Counters is nil
// when the peer omitted the counter fields. Err follows the same
// contract as FindResponse.Err.
type GetResponse struct {
	Status   uint16
	Counters *SubOpCounters
	Err      error
}

// StoreHandler receives one full record per sub-operation during a
// retrieval and returns the status to report back to the peer. It runs
// inside the transport's drain loop, so it must not block and must not
// perform I/O.
type StoreHandler func(fileMeta, dataset *dicom.Dataset) uint16

// PresentationContext names one capability to negotiate: an abstract
// syntax plus the transfer syntaxes acceptable for it.
type PresentationContext struct {
	AbstractSyntax   string
	TransferSyntaxes []string
}

// SessionConfig describes what one session must negotiate.
type SessionConfig struct {
	PresentationContexts []PresentationContext
	// OnStore handles incoming sub-operation records. Required for
	// retrievals, ignored for pure discovery sessions.
	OnStore StoreHandler
}

// Session is an open association with the remote archive. One logical
// operation runs per session; Release or Abort ends it.
type Session interface {
	// Query sends a discovery request and returns the response stream.
	// The channel is closed after the terminal response.
	Query(ctx context.Context, template *dicom.Dataset, queryModel string) (<-chan FindResponse, error)

	// Retrieve sends a retrieval request. Full records arrive through
	// the session's StoreHandler; the returned channel carries status
	// and counter updates and is closed after the terminal response.
	Retrieve(ctx context.Context, template *dicom.Dataset, queryModel string) (<-chan GetResponse, error)

	// Store pushes one record to the peer and returns its status.
	Store(ctx context.Context, fileMeta, dataset *dicom.Dataset) (uint16, error)

	// Echo verifies the association end to end.
	Echo(ctx context.Context) error

	// Release ends the session gracefully. Valid only after the
	// response stream has been fully drained.
	Release() error

	// Abort tears the session down immediately.
	Abort() error
}

// Dialer opens sessions against a configured remote archive.
type Dialer interface {
	OpenSession(ctx context.Context, config SessionConfig) (Session, error)
}
