package tip

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tipsync/internal/amount"
)

func readyTip(t *testing.T, amt string, usedDefault bool) *Tip {
	t.Helper()
	tp := newTestTip("m1")
	tp.SetAmount(amount.Result{Amount: dec(amt), UsedDefault: usedDefault}, "", t0)
	require.True(t, tp.AdvanceGrace(t0.Add(time.Second), time.Second))
	return tp
}

func permissive() Policy {
	return Policy{
		AutopayEnabled: true,
		ValidAddress:   func(s string) bool { return strings.HasPrefix(s, "bitcoincash:") },
	}
}

func TestPolicy_EvaluateOrder(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Tip, *Policy)
		want   PaymentStatus
	}{
		{"all pass", func(*Tip, *Policy) {}, ReadyToPay()},
		{"missing address", func(tp *Tip, _ *Policy) { tp.RecipientAddress = "" }, Ineligible(ReasonInvalidAddress)},
		{"malformed address", func(tp *Tip, _ *Policy) { tp.RecipientAddress = "nope" }, Ineligible(ReasonInvalidAddress)},
		{"address beats disabled", func(tp *Tip, p *Policy) {
			tp.RecipientAddress = ""
			p.AutopayEnabled = false
		}, Ineligible(ReasonInvalidAddress)},
		{"disabled", func(_ *Tip, p *Policy) { p.AutopayEnabled = false }, Ineligible(ReasonAutopayDisabled)},
		{"default disallowed", func(tp *Tip, p *Policy) {
			tp.DefaultAmountUsed = true
			p.DisallowDefault = true
		}, Ineligible(ReasonDefaultDisallowed)},
		{"default allowed", func(tp *Tip, _ *Policy) { tp.DefaultAmountUsed = true }, ReadyToPay()},
		{"over limit", func(_ *Tip, p *Policy) {
			p.UseLimit = true
			p.Limit = dec("0.0001")
		}, Ineligible(ReasonAmountLimited)},
		{"limit not in use", func(_ *Tip, p *Policy) { p.Limit = dec("0.0001") }, ReadyToPay()},
		{"at limit", func(_ *Tip, p *Policy) {
			p.UseLimit = true
			p.Limit = dec("0.0005")
		}, ReadyToPay()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp := readyTip(t, "0.0005", false)
			p := permissive()
			tt.mutate(tp, &p)
			assert.Equal(t, tt.want, p.Evaluate(tp))
		})
	}
}

func TestPolicy_RecipientOverride(t *testing.T) {
	p := Policy{AutopayEnabled: false, AutopayOverrides: map[string]bool{"alice": true}}
	assert.True(t, p.AutopayFor("Alice"))
	assert.False(t, p.AutopayFor("bob"))

	p = Policy{AutopayEnabled: true, AutopayOverrides: map[string]bool{"bob": false}}
	assert.False(t, p.AutopayFor("bob"))
	assert.True(t, p.AutopayFor("alice"))
}

func TestReevaluate_DisableThenEnable(t *testing.T) {
	tp := readyTip(t, "0.0005", false)

	off := permissive()
	off.AutopayEnabled = false
	require.True(t, tp.Reevaluate(off))
	assert.Equal(t, Ineligible(ReasonAutopayDisabled), tp.Payment)

	require.True(t, tp.Reevaluate(permissive()))
	assert.Equal(t, ReadyToPay(), tp.Payment)
	assert.False(t, tp.Reevaluate(permissive()))
}

func TestReevaluate_SkipsOtherStates(t *testing.T) {
	tp := newTestTip("m1")
	assert.False(t, tp.Reevaluate(Policy{}))
	assert.Equal(t, PaymentUnset, tp.Payment.State)

	tp.SetAmount(amount.Result{Amount: dec("0.1")}, "", t0)
	assert.False(t, tp.Reevaluate(Policy{}))
	assert.Equal(t, PaymentAmountPending, tp.Payment.State)

	tp.RegisterPayment("tx", dec("0.1"))
	assert.False(t, tp.Reevaluate(Policy{}))
	assert.Equal(t, PaymentPaid, tp.Payment.State)
}

func TestReevaluate_StickyAutopayError(t *testing.T) {
	tp := readyTip(t, "0.0005", false)
	tp.Payment = AutopayError("not enough funds")
	assert.Equal(t, "autopay error: not enough funds", tp.Payment.String())

	assert.False(t, tp.Reevaluate(permissive()))
	assert.True(t, tp.Payment.Sticky)

	require.True(t, tp.ClearSticky())
	assert.False(t, tp.Reevaluate(permissive()))
	assert.Equal(t, ReadyToPay(), tp.Payment)
	assert.False(t, tp.ClearSticky())
}

func TestQualifies(t *testing.T) {
	tp := readyTip(t, "0.0005", false)
	assert.True(t, tp.Qualifies())

	tp.AutopayTxID = "tx1"
	assert.False(t, tp.Qualifies())

	tp.AutopayTxID = ""
	tp.Payment = Ineligible(ReasonAutopayDisabled)
	assert.False(t, tp.Qualifies())
}
