package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownStatus = errors.New("unknown status")

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderAccepted  OrderStatus = "ACCEPTED"
	OrderFulfilled OrderStatus = "FULFILLED"
	OrderExpired   OrderStatus = "EXPIRED"
	OrderRefunded  OrderStatus = "REFUNDED"
)

// Accepted → Pending is taken when execution fails and the order goes back
// to matching.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:  {OrderAccepted, OrderExpired},
	OrderAccepted: {OrderFulfilled, OrderPending, OrderExpired},
	OrderExpired:  {OrderRefunded},
}

func ParseOrderStatus(raw string) (OrderStatus, error) {
	s := OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: order status %q", ErrUnknownStatus, raw)
	}
	return s, nil
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderAccepted, OrderFulfilled, OrderExpired, OrderRefunded:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderFulfilled || s == OrderRefunded
}

// Open reports whether the order can still be matched or settled.
func (s OrderStatus) Open() bool {
	return s == OrderPending || s == OrderAccepted
}

func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s OrderStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: order status %q", ErrUnknownStatus, string(s))
	}
	return string(s), nil
}

func (s *OrderStatus) Scan(src any) error {
	raw, err := scanString(src)
	if err != nil {
		return err
	}
	parsed, err := ParseOrderStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type ProposalStatus string

const (
	ProposalPending         ProposalStatus = "PENDING"
	ProposalAccepted        ProposalStatus = "ACCEPTED"
	ProposalRejected        ProposalStatus = "REJECTED"
	ProposalTimedOut        ProposalStatus = "TIMED_OUT"
	ProposalExecuted        ProposalStatus = "EXECUTED"
	ProposalFailedExecution ProposalStatus = "FAILED_EXECUTION"
	ProposalCancelled       ProposalStatus = "CANCELLED"
)

var proposalTransitions = map[ProposalStatus][]ProposalStatus{
	ProposalPending:  {ProposalAccepted, ProposalRejected, ProposalTimedOut, ProposalCancelled},
	ProposalAccepted: {ProposalExecuted, ProposalFailedExecution},
}

func ParseProposalStatus(raw string) (ProposalStatus, error) {
	s := ProposalStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: proposal status %q", ErrUnknownStatus, raw)
	}
	return s, nil
}

func (s ProposalStatus) Valid() bool {
	switch s {
	case ProposalPending, ProposalAccepted, ProposalRejected, ProposalTimedOut,
		ProposalExecuted, ProposalFailedExecution, ProposalCancelled:
		return true
	}
	return false
}

func (s ProposalStatus) Terminal() bool {
	return s.Valid() && len(proposalTransitions[s]) == 0
}

// Active reports whether the proposal still holds a reservation.
func (s ProposalStatus) Active() bool {
	return s == ProposalPending || s == ProposalAccepted
}

func (s ProposalStatus) CanTransition(to ProposalStatus) bool {
	for _, next := range proposalTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s ProposalStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: proposal status %q", ErrUnknownStatus, string(s))
	}
	return string(s), nil
}

func (s *ProposalStatus) Scan(src any) error {
	raw, err := scanString(src)
	if err != nil {
		return err
	}
	parsed, err := ParseProposalStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func scanString(src any) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", fmt.Errorf("%w: null", ErrUnknownStatus)
	default:
		return "", fmt.Errorf("%w: unsupported type %T", ErrUnknownStatus, src)
	}
}
