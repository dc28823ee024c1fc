package tip

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tipsync/internal/amount"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestTip(id string) *Tip {
	return New(Identifiers{NotificationID: id, TippingCommentID: "c" + id}, "alice", "bitcoincash:qalice", t0)
}

func TestIdentifiers_ReferencePriority(t *testing.T) {
	tests := []struct {
		name string
		ids  Identifiers
		want string
	}{
		{"tipping comment wins", Identifiers{"m1", "c1", "tc1", "p1"}, "c1"},
		{"tippee comment next", Identifiers{"m1", "", "tc1", "p1"}, "tc1"},
		{"tippee post next", Identifiers{"m1", "", "", "p1"}, "p1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ids.Reference())
		})
	}

	syn := Identifiers{NotificationID: "m1"}.Reference()
	assert.True(t, strings.HasPrefix(syn, "syn:"))
	assert.Equal(t, syn, SyntheticReference("m1"), "synthetic reference must be stable")
	assert.NotEqual(t, syn, SyntheticReference("m2"))
}

func TestNew_Defaults(t *testing.T) {
	tp := newTestTip("m1")

	assert.Equal(t, "m1", tp.ID)
	assert.Equal(t, "cm1", tp.Reference)
	assert.Equal(t, PaymentUnset, tp.Payment.State)
	assert.Equal(t, AcceptanceUnknown, tp.Acceptance)
	assert.Equal(t, ConfirmationNone, tp.Confirmation)
	assert.Equal(t, ReadNew, tp.Read)
	assert.NotNil(t, tp.Payments)
	assert.True(t, tp.AmountReceived().IsZero())
}

func TestSetAmount_StartsGrace(t *testing.T) {
	tp := newTestTip("m1")

	changed := tp.SetAmount(amount.Result{Amount: dec("0.0005"), Quantity: dec("500"), Unit: "bit"}, "500 bit", t0)
	require.True(t, changed)
	assert.Equal(t, PaymentAmountPending, tp.Payment.State)
	assert.Equal(t, t0, tp.Payment.Since)
	assert.Equal(t, "500 bit", tp.AmountText)
	assert.Equal(t, 2*time.Second, tp.Payment.Remaining(t0, 2*time.Second))
	assert.Equal(t, time.Second, tp.Payment.Remaining(t0.Add(time.Second), 2*time.Second))

	assert.False(t, tp.AdvanceGrace(t0.Add(1999*time.Millisecond), 2*time.Second))
	assert.True(t, tp.AdvanceGrace(t0.Add(2*time.Second), 2*time.Second))
	assert.Equal(t, PaymentReadyToPay, tp.Payment.State)
	assert.False(t, tp.AdvanceGrace(t0.Add(3*time.Second), 2*time.Second))
}

func TestSetAmount_FrozenOncePaid(t *testing.T) {
	tp := newTestTip("m1")
	tp.SetAmount(amount.Result{Amount: dec("0.0005")}, "", t0)
	tp.RegisterPayment("tx1", dec("0.0005"))

	assert.False(t, tp.SetAmount(amount.Result{Amount: dec("1")}, "", t0))
	assert.True(t, tp.Amount.Equal(dec("0.0005")))
}

func TestRegisterPayment_Idempotent(t *testing.T) {
	tp := newTestTip("m1")

	require.True(t, tp.RegisterPayment("tx1", dec("0.0005")))
	assert.Equal(t, Paid(1), tp.Payment)

	require.False(t, tp.RegisterPayment("tx1", dec("0.0005")))
	assert.True(t, tp.AmountReceived().Equal(dec("0.0005")))
	assert.Equal(t, Paid(1), tp.Payment)

	require.True(t, tp.RegisterPayment("tx2", dec("0.0001")))
	assert.Equal(t, Paid(2), tp.Payment)
	assert.Equal(t, "paid (2)", tp.Payment.String())
	assert.True(t, tp.AmountReceived().Equal(dec("0.0006")))
}

func TestApplyAcceptance(t *testing.T) {
	tests := []struct {
		name  string
		steps []Acceptance
		want  Acceptance
	}{
		{"linked", []Acceptance{AcceptanceLinked}, AcceptanceLinked},
		{"linked then not yet linked", []Acceptance{AcceptanceLinked, AcceptanceNotYetLinked}, AcceptanceNotYetLinked},
		{"claimed is final", []Acceptance{AcceptanceClaimed, AcceptanceReturned, AcceptanceLinked}, AcceptanceClaimed},
		{"received is final", []Acceptance{AcceptanceReceived, AcceptanceClaimed, AcceptanceReturned}, AcceptanceReceived},
		{"linked then received", []Acceptance{AcceptanceLinked, AcceptanceReceived}, AcceptanceReceived},
		{"claimed then received", []Acceptance{AcceptanceClaimed, AcceptanceReceived}, AcceptanceClaimed},
		{"received then linked", []Acceptance{AcceptanceReceived, AcceptanceLinked}, AcceptanceReceived},
		{"unknown never regresses", []Acceptance{AcceptanceLinked, AcceptanceUnknown}, AcceptanceLinked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp := newTestTip("m1")
			for _, a := range tt.steps {
				tp.ApplyAcceptance(a)
			}
			assert.Equal(t, tt.want, tp.Acceptance)
		})
	}
}

func TestApplyAcceptance_ReapplyIsNoop(t *testing.T) {
	tp := newTestTip("m1")
	require.True(t, tp.ApplyAcceptance(AcceptanceClaimed))
	assert.False(t, tp.ApplyAcceptance(AcceptanceClaimed))
}

func TestApplyAcceptance_ClaimAfterReceivedIsNoop(t *testing.T) {
	tp := newTestTip("m1")
	require.True(t, tp.ApplyAcceptance(AcceptanceReceived))
	assert.False(t, tp.ApplyAcceptance(AcceptanceClaimed))
	assert.Equal(t, AcceptanceReceived, tp.Acceptance)
	assert.True(t, tp.Acceptance.Final())
}

func TestAcceptance_Linked(t *testing.T) {
	for a, want := range map[Acceptance]bool{
		AcceptanceUnknown:      false,
		AcceptanceLinked:       true,
		AcceptanceNotYetLinked: false,
		AcceptanceReceived:     true,
		AcceptanceClaimed:      false,
		AcceptanceReturned:     false,
	} {
		assert.Equal(t, want, a.Linked(), string(a))
	}
}

func TestApplyConfirmation(t *testing.T) {
	tests := []struct {
		name  string
		steps []Confirmation
		want  Confirmation
	}{
		{"confirmed", []Confirmation{ConfirmationConfirmed}, ConfirmationConfirmed},
		{"unclaimed then claimed", []Confirmation{ConfirmationUnclaimed, ConfirmationClaimed}, ConfirmationClaimed},
		{"claimed then confirmed", []Confirmation{ConfirmationClaimed, ConfirmationConfirmed}, ConfirmationClaimed},
		{"claimed then returned", []Confirmation{ConfirmationClaimed, ConfirmationReturned}, ConfirmationClaimed},
		{"stealth is terminal", []Confirmation{ConfirmationStealth, ConfirmationClaimed}, ConfirmationStealth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp := newTestTip("m1")
			for _, c := range tt.steps {
				tp.ApplyConfirmation(c)
			}
			assert.Equal(t, tt.want, tp.Confirmation)
		})
	}
}

func TestMarkReadAndRealRecipient(t *testing.T) {
	tp := newTestTip("m1")

	assert.True(t, tp.MarkRead())
	assert.False(t, tp.MarkRead())

	assert.False(t, tp.SetRealRecipient(""))
	assert.True(t, tp.SetRealRecipient("bitcoincash:qreal"))
	assert.False(t, tp.SetRealRecipient("bitcoincash:qreal"))
}

func TestClone_IsDeep(t *testing.T) {
	tp := newTestTip("m1")
	tp.RegisterPayment("tx1", dec("1"))

	c := tp.Clone()
	c.Payments["tx2"] = dec("2")

	assert.Len(t, tp.Payments, 1)
}
