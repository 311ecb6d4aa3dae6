// Package dicomerr provides the typed errors surfaced by extraction and
// query/retrieve orchestration, plus DIMSE status helpers.
package dicomerr

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors
var (
	ErrConnectionClosed    = errors.New("dicom: connection closed")
	ErrAssociationRejected = errors.New("dicom: association rejected")
	ErrNoPresentationCtx   = errors.New("dicom: no suitable presentation context")
	ErrOperationCanceled   = errors.New("dicom: operation canceled")
)

// ValidationError reports critical metadata fields that could not be
// resolved by either extraction path. Fatal to the current extraction.
type ValidationError struct {
	MissingFields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing critical metadata fields: %s", strings.Join(e.MissingFields, ", "))
}

// NewValidationError creates a ValidationError for the given fields.
func NewValidationError(missing []string) *ValidationError {
	return &ValidationError{MissingFields: missing}
}

// AssociationError means the transport session could not be opened.
// The core attempts no retry; retry policy belongs to the caller.
type AssociationError struct {
	Remote string
	Msg    string
	Err    error
}

func (e *AssociationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("association with %s failed: %s: %v", e.Remote, e.Msg, e.Err)
	}
	return fmt.Sprintf("association with %s failed: %s", e.Remote, e.Msg)
}

func (e *AssociationError) Unwrap() error {
	return e.Err
}

// NewAssociationError creates a new association error.
func NewAssociationError(remote, msg string, err error) *AssociationError {
	return &AssociationError{Remote: remote, Msg: msg, Err: err}
}

// OperationError reports a failure during an in-flight query or retrieval:
// a failure status from the peer or a broken response stream. The session
// is aborted before this surfaces.
type OperationError struct {
	Operation string
	Status    uint16
	Msg       string
}

func (e *OperationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s failed: %s (status: 0x%04X)", e.Operation, e.Msg, e.Status)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Msg)
}

// NewOperationError creates a new operation error.
func NewOperationError(operation string, status uint16, msg string) *OperationError {
	return &OperationError{Operation: operation, Status: status, Msg: msg}
}

// StatusProcessingFailure is the generic "unable to process" DIMSE
// status. It is also reported into a response stream when the transport
// dies mid-operation, so aggregators observe a failure instead of a
// silently truncated stream.
const StatusProcessingFailure uint16 = 0xC000

// StatusCategory buckets a DIMSE status code the way PS3.7 Annex C does.
type StatusCategory string

const (
	CategorySuccess StatusCategory = "Success"
	CategoryPending StatusCategory = "Pending"
	CategoryWarning StatusCategory = "Warning"
	CategoryCancel  StatusCategory = "Cancel"
	CategoryFailure StatusCategory = "Failure"
	CategoryUnknown StatusCategory = "Unknown"
)

// CategorizeStatus maps a DIMSE status code to its category.
func CategorizeStatus(status uint16) StatusCategory {
	switch {
	case status == 0x0000:
		return CategorySuccess
	case status == 0xFF00 || status == 0xFF01:
		return CategoryPending
	case status == 0xFE00:
		return CategoryCancel
	case status == 0x0001 || status&0xF000 == 0xB000:
		return CategoryWarning
	case status&0xF000 == 0xA000 || status&0xF000 == 0xC000:
		return CategoryFailure
	case status&0xFF00 == 0x0100 || status&0xFF00 == 0x0200:
		return CategoryFailure
	default:
		return CategoryUnknown
	}
}

// IsPending reports whether the status indicates more responses follow.
func IsPending(status uint16) bool {
	return CategorizeStatus(status) == CategoryPending
}

// IsSuccess reports whether the status is a terminal success.
func IsSuccess(status uint16) bool {
	return status == 0x0000
}
