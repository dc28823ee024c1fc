package tip

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Ineligibility reasons, as shown to the user.
const (
	ReasonInvalidAddress    = "invalid recipient address"
	ReasonAutopayDisabled   = "autopay disabled"
	ReasonDefaultDisallowed = "autopay disallowed (default amount)"
	ReasonAmountLimited     = "autopay amount-limited"
	ReasonAutopayError      = "autopay error: "
)

// Policy is the autopay eligibility configuration. It is immutable once
// handed to a Collection; replace it with Collection.SetPolicy.
type Policy struct {
	AutopayEnabled bool

	// AutopayOverrides enables or disables autopay per recipient username
	// (case-insensitive), taking precedence over AutopayEnabled.
	AutopayOverrides map[string]bool

	DisallowDefault bool

	UseLimit bool
	Limit    decimal.Decimal

	// ValidAddress checks an address is well formed. Nil accepts any
	// non-empty address.
	ValidAddress func(string) bool
}

// AutopayFor reports whether autopay is enabled for a recipient.
func (p Policy) AutopayFor(username string) bool {
	if v, ok := p.AutopayOverrides[strings.ToLower(username)]; ok {
		return v
	}
	return p.AutopayEnabled
}

// Evaluate runs the eligibility chain for a tip that is ready to pay. The
// first failing rule wins.
func (p Policy) Evaluate(t *Tip) PaymentStatus {
	if t.RecipientAddress == "" || (p.ValidAddress != nil && !p.ValidAddress(t.RecipientAddress)) {
		return Ineligible(ReasonInvalidAddress)
	}
	if !p.AutopayFor(t.Username) {
		return Ineligible(ReasonAutopayDisabled)
	}
	if p.DisallowDefault && t.DefaultAmountUsed {
		return Ineligible(ReasonDefaultDisallowed)
	}
	if p.UseLimit && t.Amount.GreaterThan(p.Limit) {
		return Ineligible(ReasonAmountLimited)
	}
	return ReadyToPay()
}

// Reevaluate re-derives the payment status of a ready or ineligible tip.
// Sticky ineligibility is left alone; see ClearSticky.
func (t *Tip) Reevaluate(p Policy) bool {
	switch t.Payment.State {
	case PaymentReadyToPay:
	case PaymentIneligible:
		if t.Payment.Sticky {
			return false
		}
	default:
		return false
	}

	next := p.Evaluate(t)
	if next == t.Payment {
		return false
	}
	t.Payment = next
	return true
}

// ClearSticky makes a failed-broadcast tip ready again so the next
// re-evaluation decides afresh.
func (t *Tip) ClearSticky() bool {
	if t.Payment.State != PaymentIneligible || !t.Payment.Sticky {
		return false
	}
	t.Payment = ReadyToPay()
	return true
}
