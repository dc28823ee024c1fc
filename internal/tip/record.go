package tip

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is the serializable projection of a Tip.
//
// The grace-period start is not persisted: a restored amount-pending tip
// starts its grace period again at restore time.
type Record struct {
	ID        string    `json:"id"`
	Reference string    `json:"reference"`
	CreatedAt time.Time `json:"created_at"`

	Username             string `json:"username"`
	RecipientAddress     string `json:"recipient_address,omitempty"`
	RealRecipientAddress string `json:"real_recipient_address,omitempty"`

	TippingCommentID string `json:"tipping_comment_id,omitempty"`
	TippeeCommentID  string `json:"tippee_comment_id,omitempty"`
	TippeePostID     string `json:"tippee_post_id,omitempty"`

	AmountText        string          `json:"tip_amount_text,omitempty"`
	Quantity          decimal.Decimal `json:"tip_quantity"`
	Unit              string          `json:"tip_unit,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	DefaultAmountUsed bool            `json:"default_amount_used"`

	PaymentStatus PaymentRecord `json:"payment_status"`
	Acceptance    Acceptance    `json:"acceptance_status"`
	Confirmation  Confirmation  `json:"confirmation_status"`
	Read          ReadStatus    `json:"read_status"`

	Payments    map[string]decimal.Decimal `json:"payments"`
	AutopayTxID string                     `json:"autopay_txid,omitempty"`
}

// PaymentRecord is the serializable form of a PaymentStatus.
type PaymentRecord struct {
	State  PaymentState `json:"state"`
	Count  int          `json:"count,omitempty"`
	Reason string       `json:"reason,omitempty"`
	Sticky bool         `json:"sticky,omitempty"`
}

// ToRecord projects t for persistence.
func (t *Tip) ToRecord() Record {
	c := t.Clone()
	return Record{
		ID:                   c.ID,
		Reference:            c.Reference,
		CreatedAt:            c.CreatedAt.UTC(),
		Username:             c.Username,
		RecipientAddress:     c.RecipientAddress,
		RealRecipientAddress: c.RealRecipientAddress,
		TippingCommentID:     c.TippingCommentID,
		TippeeCommentID:      c.TippeeCommentID,
		TippeePostID:         c.TippeePostID,
		AmountText:           c.AmountText,
		Quantity:             c.Quantity,
		Unit:                 c.Unit,
		Amount:               c.Amount,
		DefaultAmountUsed:    c.DefaultAmountUsed,
		PaymentStatus: PaymentRecord{
			State:  c.Payment.State,
			Count:  c.Payment.Count,
			Reason: c.Payment.Reason,
			Sticky: c.Payment.Sticky,
		},
		Acceptance:   c.Acceptance,
		Confirmation: c.Confirmation,
		Read:         c.Read,
		Payments:     c.Payments,
		AutopayTxID:  c.AutopayTxID,
	}
}

// FromRecord rebuilds a tip. now restarts the grace period of an
// amount-pending tip.
func FromRecord(r Record, now time.Time) *Tip {
	payments := make(map[string]decimal.Decimal, len(r.Payments))
	for k, v := range r.Payments {
		payments[k] = v
	}

	t := &Tip{
		ID:                   r.ID,
		Reference:            r.Reference,
		CreatedAt:            r.CreatedAt,
		Username:             r.Username,
		RecipientAddress:     r.RecipientAddress,
		RealRecipientAddress: r.RealRecipientAddress,
		TippingCommentID:     r.TippingCommentID,
		TippeeCommentID:      r.TippeeCommentID,
		TippeePostID:         r.TippeePostID,
		AmountText:           r.AmountText,
		Quantity:             r.Quantity,
		Unit:                 r.Unit,
		Amount:               r.Amount,
		DefaultAmountUsed:    r.DefaultAmountUsed,
		Payment: PaymentStatus{
			State:  r.PaymentStatus.State,
			Count:  r.PaymentStatus.Count,
			Reason: r.PaymentStatus.Reason,
			Sticky: r.PaymentStatus.Sticky,
		},
		Acceptance:   r.Acceptance,
		Confirmation: r.Confirmation,
		Read:         r.Read,
		Payments:     payments,
		AutopayTxID:  r.AutopayTxID,
	}
	if t.Payment.State == "" {
		t.Payment = Unset()
	}
	if t.Payment.State == PaymentAmountPending {
		t.Payment.Since = now
	}
	if t.Acceptance == "" {
		t.Acceptance = AcceptanceUnknown
	}
	if t.Read == "" {
		t.Read = ReadNew
	}
	return t
}
