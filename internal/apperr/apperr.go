// Package apperr is the error taxonomy shared by the matching engine and its
// callers. Every engine failure is an *Error with a Kind (how the caller
// should react) and a Code (what happened).
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository"
)

type Kind string

const (
	KindValidation         Kind = "VALIDATION"
	KindConflict           Kind = "CONFLICT"
	KindExpiry             Kind = "EXPIRY"
	KindNotFound           Kind = "NOT_FOUND"
	KindStorageUnavailable Kind = "STORAGE_UNAVAILABLE"
	KindMatchingFailed     Kind = "MATCHING_FAILED"
)

type Code string

const (
	CodeInvalidAmount     Code = "INVALID_AMOUNT"
	CodeInvalidOrderID    Code = "INVALID_ORDER_ID"
	CodeInvalidAddress    Code = "INVALID_ADDRESS"
	CodeInvalidExpiry     Code = "INVALID_EXPIRY"
	CodeInvalidCurrency   Code = "INVALID_CURRENCY"
	CodeFeeOutOfRange     Code = "FEE_OUT_OF_RANGE"
	CodeInvalidIntent     Code = "INVALID_INTENT"
	CodeInvalidProof      Code = "INVALID_PROOF"
	CodeInvalidTransition Code = "INVALID_TRANSITION"

	CodeAlreadyDecided    Code = "ALREADY_DECIDED"
	CodeCapacityExhausted Code = "CAPACITY_EXHAUSTED"
	CodeDuplicateOrder    Code = "DUPLICATE_ORDER"

	CodeExpired Code = "EXPIRED"

	CodeOrderNotFound    Code = "ORDER_NOT_FOUND"
	CodeProposalNotFound Code = "PROPOSAL_NOT_FOUND"
	CodeIntentNotFound   Code = "INTENT_NOT_FOUND"
	CodeProviderNotFound Code = "PROVIDER_NOT_FOUND"

	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
	CodeMatchingFailed     Code = "MATCHING_FAILED"
)

type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Code, so errors.Is(err, apperr.AlreadyDecided(""))
// works regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func New(kind Kind, code Code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, code Code, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validation(code Code, format string, args ...any) *Error {
	return New(KindValidation, code, format, args...)
}

func FeeOutOfRange(fee, min, max uint32) *Error {
	return New(KindValidation, CodeFeeOutOfRange, "fee %d bps outside [%d, %d]", fee, min, max)
}

func AlreadyDecided(format string, args ...any) *Error {
	return New(KindConflict, CodeAlreadyDecided, format, args...)
}

func CapacityExhausted(format string, args ...any) *Error {
	return New(KindConflict, CodeCapacityExhausted, format, args...)
}

func Expired(format string, args ...any) *Error {
	return New(KindExpiry, CodeExpired, format, args...)
}

func NotFound(code Code, format string, args ...any) *Error {
	return New(KindNotFound, code, format, args...)
}

func StorageUnavailable(err error, format string, args ...any) *Error {
	return Wrap(KindStorageUnavailable, CodeStorageUnavailable, err, format, args...)
}

func MatchingFailed(err error, format string, args ...any) *Error {
	return Wrap(KindMatchingFailed, CodeMatchingFailed, err, format, args...)
}

// FromRepository maps a repository failure onto the taxonomy. notFound is the
// code reported when the looked-up row is missing. Errors that are already
// *Error and context errors pass through unchanged.
func FromRepository(err error, notFound Code, format string, args ...any) error {
	var appErr *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return NotFound(notFound, format, args...)
	case errors.Is(err, repository.ErrInsufficientCapacity):
		return Wrap(KindConflict, CodeCapacityExhausted, err, format, args...)
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrDuplicate):
		return Wrap(KindConflict, CodeAlreadyDecided, err, format, args...)
	default:
		return StorageUnavailable(err, format, args...)
	}
}

func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Retryable reports whether err is a transient storage failure.
func Retryable(err error) bool {
	return IsKind(err, KindStorageUnavailable)
}

func HTTPStatus(err error) int {
	k, ok := KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindExpiry:
		return http.StatusGone
	case KindNotFound:
		return http.StatusNotFound
	case KindStorageUnavailable:
		return http.StatusServiceUnavailable
	case KindMatchingFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
