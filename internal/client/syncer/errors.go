package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/datawallet/internal/client/backbone"
	"github.com/dmitrijs2005/datawallet/internal/client/store"
	"github.com/dmitrijs2005/datawallet/internal/common"
)

// Code is a stable, machine readable sync failure class.
type Code string

const (
	CodeTimeout      Code = "error.sync.timeout"
	CodeCanceled     Code = "error.sync.canceled"
	CodeUnavailable  Code = "error.sync.backboneUnavailable"
	CodeUnauthorized Code = "error.sync.unauthorized"
	CodeRejected     Code = "error.sync.pushRejected"
	CodeValidation   Code = "error.sync.validation"
	CodeIntegrity    Code = "error.sync.integrity"
	CodeEventFailed  Code = "error.sync.eventFailed"
	CodeBlocked      Code = "error.sync.blockedByFailure"
	CodeLocked       Code = "error.sync.storeLocked"
	CodeInternal     Code = "error.sync.internal"
)

// SyncError is the only error type returned by the coordinator.
type SyncError struct {
	Code    Code
	Message string
	// EventID names the external event that stopped the run, if any.
	EventID string

	err error
}

func (e *SyncError) Error() string {
	if e.EventID != "" {
		return fmt.Sprintf("%s: event %s: %s", e.Code, e.EventID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SyncError) Unwrap() error { return e.err }

func newSyncError(code Code, err error) *SyncError {
	return &SyncError{Code: code, Message: err.Error(), err: err}
}

// toSyncError classifies err. A *SyncError anywhere in the chain is
// returned as is.
func toSyncError(err error) *SyncError {
	if err == nil {
		return nil
	}
	var se *SyncError
	if errors.As(err, &se) {
		return se
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return newSyncError(CodeTimeout, err)
	case errors.Is(err, context.Canceled):
		return newSyncError(CodeCanceled, err)
	case errors.Is(err, store.ErrLocked):
		return newSyncError(CodeLocked, err)
	case errors.Is(err, backbone.ErrUnauthorized), errors.Is(err, backbone.ErrForbidden):
		return newSyncError(CodeUnauthorized, err)
	case errors.Is(err, common.ErrValidation):
		return newSyncError(CodeValidation, err)
	case errors.Is(err, common.ErrIntegrity):
		return newSyncError(CodeIntegrity, err)
	}

	var apiErr *backbone.APIError
	if errors.As(err, &apiErr) || backbone.IsTransient(err) {
		return newSyncError(CodeUnavailable, err)
	}
	return newSyncError(CodeInternal, err)
}

// recoverable reports whether a processing error may go away on retry.
func recoverable(err error) bool {
	return !errors.Is(err, common.ErrValidation) && !errors.Is(err, common.ErrIntegrity)
}

// errorCode is what is reported to the backbone for a failed event.
func errorCode(err error) string {
	switch {
	case errors.Is(err, common.ErrValidation):
		return string(CodeValidation)
	case errors.Is(err, common.ErrIntegrity):
		return string(CodeIntegrity)
	}
	return string(CodeEventFailed)
}
