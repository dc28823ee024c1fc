// Package tip models one tipping intent and the collection that owns them.
//
// A Tip carries four orthogonal status axes (payment, acceptance,
// confirmation, read), each driven by a different external signal. The
// Collection is the single owner of all tips: other components read
// snapshots and mutate only through Collection.Modify, which re-derives
// payment eligibility under the collection's Policy after every change.
package tip

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/tipsync/internal/amount"
)

var (
	// ErrDuplicateTip is returned when adding a tip whose id is taken.
	ErrDuplicateTip = errors.New("tip: duplicate id")

	// ErrNotFound is returned for operations on an unknown tip id.
	ErrNotFound = errors.New("tip: not found")
)

// syntheticDomain separates synthetic references from platform ids.
const syntheticDomain = "tipsync/reference/v1"

// Tip is one tracked tipping intent.
type Tip struct {
	ID        string
	Reference string
	CreatedAt time.Time

	Username             string
	RecipientAddress     string
	RealRecipientAddress string

	// Raw platform identifiers, kept so external objects can be re-fetched.
	TippingCommentID string
	TippeeCommentID  string
	TippeePostID     string

	AmountText        string
	Quantity          decimal.Decimal
	Unit              string
	Amount            decimal.Decimal
	DefaultAmountUsed bool

	Payment      PaymentStatus
	Acceptance   Acceptance
	Confirmation Confirmation
	Read         ReadStatus

	// Payments maps a transaction id to the amount received in it.
	Payments map[string]decimal.Decimal

	// AutopayTxID is the transaction broadcast for this tip by autopay.
	// It excludes the tip from further batches.
	AutopayTxID string
}

// Identifiers are the platform ids a tip's reference is derived from.
type Identifiers struct {
	NotificationID   string
	TippingCommentID string
	TippeeCommentID  string
	TippeePostID     string
}

// Reference picks the join key: the tipping comment, else the tippee
// comment, else the tippee post, else a synthetic key derived from the
// notification id.
func (ids Identifiers) Reference() string {
	switch {
	case ids.TippingCommentID != "":
		return ids.TippingCommentID
	case ids.TippeeCommentID != "":
		return ids.TippeeCommentID
	case ids.TippeePostID != "":
		return ids.TippeePostID
	default:
		return SyntheticReference(ids.NotificationID)
	}
}

// SyntheticReference derives a reference that cannot collide with a
// platform id.
func SyntheticReference(notificationID string) string {
	h := sha256.New()
	h.Write([]byte(syntheticDomain))
	h.Write([]byte{0})
	h.Write([]byte(notificationID))
	return "syn:" + hex.EncodeToString(h.Sum(nil))[:24]
}

// New creates a tip for a tip-creation notification. Its reference is fixed
// here for the tip's lifetime.
func New(ids Identifiers, username, recipientAddress string, createdAt time.Time) *Tip {
	return &Tip{
		ID:               ids.NotificationID,
		Reference:        ids.Reference(),
		CreatedAt:        createdAt,
		Username:         username,
		RecipientAddress: recipientAddress,
		TippingCommentID: ids.TippingCommentID,
		TippeeCommentID:  ids.TippeeCommentID,
		TippeePostID:     ids.TippeePostID,
		Payment:          Unset(),
		Acceptance:       AcceptanceUnknown,
		Confirmation:     ConfirmationNone,
		Read:             ReadNew,
		Payments:         make(map[string]decimal.Decimal),
	}
}

// Clone returns a deep copy.
func (t *Tip) Clone() Tip {
	c := *t
	c.Payments = make(map[string]decimal.Decimal, len(t.Payments))
	for k, v := range t.Payments {
		c.Payments[k] = v
	}
	return c
}

// AmountReceived sums the payment ledger.
func (t *Tip) AmountReceived() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range t.Payments {
		sum = sum.Add(v)
	}
	return sum
}

// SetAmount records a resolved amount and starts the grace period. Once the
// tip is paid the amount is frozen and SetAmount reports false.
func (t *Tip) SetAmount(r amount.Result, text string, now time.Time) bool {
	if t.Payment.State == PaymentPaid {
		return false
	}
	t.AmountText = text
	t.Quantity = r.Quantity
	t.Unit = r.Unit
	t.Amount = r.Amount
	t.DefaultAmountUsed = r.UsedDefault
	if t.Payment.State == PaymentUnset {
		t.Payment = AmountPending(now)
	}
	return true
}

// AdvanceGrace moves an amount-pending tip to ready once grace has elapsed
// since the pending state began.
func (t *Tip) AdvanceGrace(now time.Time, grace time.Duration) bool {
	if t.Payment.State != PaymentAmountPending {
		return false
	}
	if now.Sub(t.Payment.Since) < grace {
		return false
	}
	t.Payment = ReadyToPay()
	return true
}

// RegisterPayment adds a payment to the ledger. Re-registering a known
// transaction id is a no-op.
func (t *Tip) RegisterPayment(txid string, value decimal.Decimal) bool {
	if _, ok := t.Payments[txid]; ok {
		return false
	}
	if t.Payments == nil {
		t.Payments = make(map[string]decimal.Decimal)
	}
	t.Payments[txid] = value
	t.Payment = Paid(len(t.Payments))
	return true
}

// ApplyAcceptance moves the acceptance axis forward. Linked and
// not-yet-linked may replace each other; claimed, returned and received
// are final.
func (t *Tip) ApplyAcceptance(a Acceptance) bool {
	if !advances(t.Acceptance.rank(), a.rank(), 3, a == t.Acceptance) {
		return false
	}
	t.Acceptance = a
	return true
}

// ApplyConfirmation moves the confirmation axis forward. Claimed, returned
// and stealth are final.
func (t *Tip) ApplyConfirmation(c Confirmation) bool {
	if !advances(t.Confirmation.rank(), c.rank(), 2, c == t.Confirmation) {
		return false
	}
	t.Confirmation = c
	return true
}

// MarkRead flips the read axis.
func (t *Tip) MarkRead() bool {
	if t.Read == ReadDone {
		return false
	}
	t.Read = ReadDone
	return true
}

// SetRealRecipient records where a relay address forwarded the funds.
func (t *Tip) SetRealRecipient(address string) bool {
	if address == "" || t.RealRecipientAddress == address {
		return false
	}
	t.RealRecipientAddress = address
	return true
}

// Qualifies reports whether the tip may be included in an autopay batch.
// The status must already have been re-evaluated under the current policy.
func (t *Tip) Qualifies() bool {
	return t.Payment.State == PaymentReadyToPay &&
		t.AutopayTxID == "" &&
		len(t.Payments) == 0
}
