package tip

import (
	"fmt"
	"time"
)

// PaymentState is the payment axis of a tip.
type PaymentState string

const (
	PaymentUnset         PaymentState = "unset"
	PaymentAmountPending PaymentState = "amount_pending"
	PaymentReadyToPay    PaymentState = "ready_to_pay"
	PaymentPaid          PaymentState = "paid"
	PaymentIneligible    PaymentState = "ineligible"
)

// PaymentStatus is a tagged variant: only the fields belonging to State
// carry meaning.
type PaymentStatus struct {
	State PaymentState

	// Since is when the grace period started (PaymentAmountPending).
	Since time.Time

	// Count is the number of registered payments (PaymentPaid).
	Count int

	// Reason explains ineligibility (PaymentIneligible).
	Reason string

	// Sticky marks an ineligibility that a plain re-evaluation must not
	// clear, such as a failed broadcast.
	Sticky bool
}

// Unset returns the initial payment status.
func Unset() PaymentStatus { return PaymentStatus{State: PaymentUnset} }

// AmountPending starts the grace period at since.
func AmountPending(since time.Time) PaymentStatus {
	return PaymentStatus{State: PaymentAmountPending, Since: since}
}

// ReadyToPay returns the ready status.
func ReadyToPay() PaymentStatus { return PaymentStatus{State: PaymentReadyToPay} }

// Paid returns the status after n registered payments.
func Paid(n int) PaymentStatus { return PaymentStatus{State: PaymentPaid, Count: n} }

// Ineligible returns a re-evaluable ineligibility.
func Ineligible(reason string) PaymentStatus {
	return PaymentStatus{State: PaymentIneligible, Reason: reason}
}

// AutopayError returns the sticky ineligibility recorded after a failed
// broadcast.
func AutopayError(reason string) PaymentStatus {
	return PaymentStatus{State: PaymentIneligible, Reason: ReasonAutopayError + reason, Sticky: true}
}

// Remaining returns how much of the grace period is left at now.
func (s PaymentStatus) Remaining(now time.Time, grace time.Duration) time.Duration {
	if s.State != PaymentAmountPending {
		return 0
	}
	left := grace - now.Sub(s.Since)
	if left < 0 {
		return 0
	}
	return left
}

// String renders the status for humans.
func (s PaymentStatus) String() string {
	switch s.State {
	case PaymentUnset:
		return ""
	case PaymentAmountPending:
		return "amount pending"
	case PaymentReadyToPay:
		return "ready to pay"
	case PaymentPaid:
		return fmt.Sprintf("paid (%d)", s.Count)
	case PaymentIneligible:
		return s.Reason
	default:
		return string(s.State)
	}
}

// Acceptance is the acceptance axis, driven by platform notifications.
type Acceptance string

const (
	AcceptanceUnknown      Acceptance = "unknown"
	AcceptanceLinked       Acceptance = "linked"
	AcceptanceNotYetLinked Acceptance = "not_yet_linked"
	AcceptanceReceived     Acceptance = "received"
	AcceptanceClaimed      Acceptance = "claimed"
	AcceptanceReturned     Acceptance = "returned"
)

func (a Acceptance) rank() int {
	switch a {
	case AcceptanceLinked, AcceptanceNotYetLinked:
		return 1
	case AcceptanceClaimed, AcceptanceReturned, AcceptanceReceived:
		return 3
	default:
		return 0
	}
}

// Final reports whether no further acceptance update applies.
func (a Acceptance) Final() bool { return a.rank() == 3 }

// Linked reports whether the recipient had an address linked when tipped,
// so the tip went straight to them rather than to a relay.
func (a Acceptance) Linked() bool {
	return a == AcceptanceLinked || a == AcceptanceReceived
}

// Confirmation is the confirmation axis, driven by the bot's comments.
type Confirmation string

const (
	ConfirmationNone      Confirmation = ""
	ConfirmationConfirmed Confirmation = "confirmed"
	ConfirmationUnclaimed Confirmation = "unclaimed"
	ConfirmationClaimed   Confirmation = "claimed"
	ConfirmationReturned  Confirmation = "returned"
	ConfirmationStealth   Confirmation = "stealth"
)

func (c Confirmation) rank() int {
	switch c {
	case ConfirmationConfirmed, ConfirmationUnclaimed:
		return 1
	case ConfirmationClaimed, ConfirmationReturned:
		return 2
	case ConfirmationStealth:
		return 3
	default:
		return 0
	}
}

// ReadStatus tracks whether the originating notification was marked read.
type ReadStatus string

const (
	ReadNew  ReadStatus = "new"
	ReadDone ReadStatus = "read"
)

// advances reports whether moving from cur to next is allowed on a ranked
// axis: forward always, sideways only among the non-terminal middle values.
func advances(cur, next, terminal int, same bool) bool {
	switch {
	case same:
		return false
	case cur >= terminal:
		return false
	case next > cur:
		return true
	case next == cur && cur > 0:
		return true
	default:
		return false
	}
}
