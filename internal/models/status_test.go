package models

import (
	"errors"
	"testing"
)

func TestProposalStatus_TerminalNeverTransitions(t *testing.T) {
	all := []ProposalStatus{
		ProposalPending, ProposalAccepted, ProposalRejected, ProposalTimedOut,
		ProposalExecuted, ProposalFailedExecution, ProposalCancelled,
	}
	for _, from := range all {
		if !from.Terminal() {
			continue
		}
		for _, to := range all {
			if from.CanTransition(to) {
				t.Fatalf("%s -> %s allowed, want terminal", from, to)
			}
		}
	}
	for _, s := range []ProposalStatus{ProposalRejected, ProposalTimedOut, ProposalExecuted, ProposalFailedExecution, ProposalCancelled} {
		if !s.Terminal() {
			t.Fatalf("%s terminal=false want=true", s)
		}
	}
}

func TestProposalStatus_Table(t *testing.T) {
	cases := []struct {
		from, to ProposalStatus
		want     bool
	}{
		{ProposalPending, ProposalAccepted, true},
		{ProposalPending, ProposalRejected, true},
		{ProposalPending, ProposalTimedOut, true},
		{ProposalPending, ProposalExecuted, false},
		{ProposalAccepted, ProposalExecuted, true},
		{ProposalAccepted, ProposalFailedExecution, true},
		{ProposalAccepted, ProposalRejected, false},
		{ProposalAccepted, ProposalTimedOut, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Fatalf("%s -> %s = %v want=%v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestOrderStatus_Table(t *testing.T) {
	if !OrderPending.CanTransition(OrderAccepted) {
		t.Fatalf("pending -> accepted not allowed")
	}
	if !OrderAccepted.CanTransition(OrderPending) {
		t.Fatalf("accepted -> pending not allowed")
	}
	if OrderFulfilled.CanTransition(OrderExpired) {
		t.Fatalf("fulfilled -> expired allowed")
	}
	if OrderPending.CanTransition(OrderRefunded) {
		t.Fatalf("pending -> refunded allowed")
	}
	if !OrderExpired.CanTransition(OrderRefunded) {
		t.Fatalf("expired -> refunded not allowed")
	}
}

func TestParseStatus_UnknownFailsLoudly(t *testing.T) {
	if _, err := ParseOrderStatus("SETTLED"); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("err=%v want ErrUnknownStatus", err)
	}
	if _, err := ParseProposalStatus(""); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("err=%v want ErrUnknownStatus", err)
	}
	var s ProposalStatus
	if err := s.Scan([]byte("timed_out")); err != nil || s != ProposalTimedOut {
		t.Fatalf("scan=%q err=%v want TIMED_OUT", s, err)
	}
	if err := s.Scan("bogus"); err == nil {
		t.Fatalf("expected scan error")
	}
	if _, err := OrderStatus("bogus").Value(); err == nil {
		t.Fatalf("expected value error")
	}
}

func TestParseTier_Lenient(t *testing.T) {
	if got := ParseTier("delta"); got != TierDelta {
		t.Fatalf("tier=%s want=DELTA", got)
	}
	if got := ParseTier("mega"); got != TierAlpha {
		t.Fatalf("tier=%s want=ALPHA", got)
	}
	if TierTitan.Rank() <= TierOmega.Rank() {
		t.Fatalf("titan rank=%d omega rank=%d", TierTitan.Rank(), TierOmega.Rank())
	}
}
