package autopay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tipsync/internal/amount"
	"github.com/roach88/tipsync/internal/chain"
	"github.com/roach88/tipsync/internal/testutil"
	"github.com/roach88/tipsync/internal/tip"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ap     *AutoPay
	tips   *tip.Collection
	chain  *testutil.FakeChain
	params chain.Params
}

func policy(params chain.Params) tip.Policy {
	return tip.Policy{AutopayEnabled: true, ValidAddress: params.Valid}
}

func setupAutoPay(t *testing.T) *fixture {
	t.Helper()
	params := chain.DefaultParams()
	tips := tip.NewCollection(policy(params))
	fc := testutil.NewFakeChain(params, testutil.Address(params, 200))

	ap := New(Config{
		MinWait: DefaultMinWait,
		IDs:     testutil.NewSequenceGenerator("batch"),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, tips, fc, t0)

	return &fixture{ap: ap, tips: tips, chain: fc, params: params}
}

func (f *fixture) addReady(t *testing.T, id string, seed byte, amt string, at time.Time) {
	t.Helper()
	tp := tip.New(tip.Identifiers{NotificationID: id}, "bob", testutil.Address(f.params, seed), at)
	require.NoError(t, f.tips.Add(tp))
	_, err := f.tips.Modify(id, func(tp *tip.Tip) bool {
		tp.SetAmount(amount.Result{Amount: decimal.RequireFromString(amt)}, "", at)
		return tp.AdvanceGrace(at.Add(time.Hour), time.Second)
	})
	require.NoError(t, err)
}

func (f *fixture) get(t *testing.T, id string) tip.Tip {
	t.Helper()
	got, ok := f.tips.Get(id)
	require.True(t, ok)
	return got
}

func TestTick_WaitsForMinInterval(t *testing.T) {
	f := setupAutoPay(t)
	f.addReady(t, "m1", 1, "0.0005", t0)

	b, err := f.ap.Tick(context.Background(), t0.Add(time.Second))
	require.NoError(t, err)
	assert.Nil(t, b)
	assert.Empty(t, f.chain.Broadcasts())
}

func TestTick_PaysBatch(t *testing.T) {
	f := setupAutoPay(t)
	f.addReady(t, "m1", 1, "0.0005", t0)
	f.addReady(t, "m2", 2, "0.001", t0.Add(time.Second))
	assert.Equal(t, []string{"m1", "m2"}, f.ap.Candidates())

	b, err := f.ap.Tick(context.Background(), t0.Add(3*time.Second))
	require.NoError(t, err)
	require.NotNil(t, b)
	require.NoError(t, b.Err)

	assert.Equal(t, "batch-0001", b.ID)
	assert.Equal(t, []string{"m1", "m2"}, b.TipIDs)
	assert.Equal(t, "chaintip 0.0005 BCH to u/bob (m1), 0.001 BCH to u/bob (m2)", b.Label)

	broadcasts := f.chain.Broadcasts()
	require.Len(t, broadcasts, 1)
	assert.Equal(t, b.TxID, broadcasts[0].TxID)
	assert.Equal(t, btcutil.Amount(50_000), broadcasts[0].Outputs[0].Value)
	assert.Equal(t, btcutil.Amount(100_000), broadcasts[0].Outputs[1].Value)

	assert.Equal(t, b.TxID, f.get(t, "m1").AutopayTxID)
	assert.Equal(t, b.TxID, f.get(t, "m2").AutopayTxID)
	assert.Empty(t, f.ap.Candidates())

	// Nothing left to pay: no duplicate broadcast.
	b, err = f.ap.Tick(context.Background(), t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, b)
	assert.Len(t, f.chain.Broadcasts(), 1)
}

func TestTick_ResetsTimerAfterBatch(t *testing.T) {
	f := setupAutoPay(t)
	f.addReady(t, "m1", 1, "0.0005", t0)
	_, err := f.ap.Tick(context.Background(), t0.Add(3*time.Second))
	require.NoError(t, err)

	f.addReady(t, "m2", 2, "0.0005", t0)

	b, err := f.ap.Tick(context.Background(), t0.Add(4*time.Second))
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = f.ap.Tick(context.Background(), t0.Add(6*time.Second))
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, []string{"m2"}, b.TipIDs)
}

func TestTick_InsufficientFunds(t *testing.T) {
	f := setupAutoPay(t)
	f.addReady(t, "m1", 1, "0.0005", t0)
	f.addReady(t, "m2", 2, "0.0005", t0)
	f.chain.FailNextPay(fmt.Errorf("wallet: %w", ErrInsufficientFunds))

	b, err := f.ap.Tick(context.Background(), t0.Add(3*time.Second))
	require.NoError(t, err)
	require.NotNil(t, b)
	require.ErrorIs(t, b.Err, ErrInsufficientFunds)

	for _, id := range []string{"m1", "m2"} {
		got := f.get(t, id)
		assert.Equal(t, tip.AutopayError("not enough funds"), got.Payment, id)
		assert.Equal(t, "autopay error: not enough funds", got.Payment.String())
	}
	assert.Empty(t, f.ap.Candidates())

	// Failed tips are not retried silently.
	b, err = f.ap.Tick(context.Background(), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestTick_BroadcastErrorReason(t *testing.T) {
	f := setupAutoPay(t)
	f.addReady(t, "m1", 1, "0.0005", t0)
	f.chain.FailNextPay(errors.New("server rejected transaction"))

	b, err := f.ap.Tick(context.Background(), t0.Add(3*time.Second))
	require.NoError(t, err)
	require.Error(t, b.Err)
	assert.Equal(t, "autopay error: server rejected transaction", f.get(t, "m1").Payment.Reason)
}

func TestTick_RetryAfterPolicyChange(t *testing.T) {
	f := setupAutoPay(t)
	f.addReady(t, "m1", 1, "0.0005", t0)
	f.chain.FailNextPay(errors.New("offline"))
	_, err := f.ap.Tick(context.Background(), t0.Add(3*time.Second))
	require.NoError(t, err)

	f.tips.SetPolicy(policy(f.params))
	assert.Equal(t, []string{"m1"}, f.ap.Candidates())

	b, err := f.ap.Tick(context.Background(), t0.Add(6*time.Second))
	require.NoError(t, err)
	require.NotNil(t, b)
	require.NoError(t, b.Err)
}

func TestTick_RefiltersUnderPolicy(t *testing.T) {
	f := setupAutoPay(t)
	f.addReady(t, "m1", 1, "0.0005", t0)

	off := policy(f.params)
	off.AutopayEnabled = false
	f.tips.SetPolicy(off)
	assert.Empty(t, f.ap.Candidates())

	b, err := f.ap.Tick(context.Background(), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, b)
	assert.Equal(t, tip.Ineligible(tip.ReasonAutopayDisabled), f.get(t, "m1").Payment)
}

func TestCandidates_TrackStatus(t *testing.T) {
	f := setupAutoPay(t)
	tp := tip.New(tip.Identifiers{NotificationID: "m1"}, "bob", testutil.Address(f.params, 1), t0)
	require.NoError(t, f.tips.Add(tp))
	assert.Empty(t, f.ap.Candidates())

	_, err := f.tips.Modify("m1", func(tp *tip.Tip) bool {
		return tp.SetAmount(amount.Result{Amount: decimal.RequireFromString("0.0005")}, "", t0)
	})
	require.NoError(t, err)
	assert.Empty(t, f.ap.Candidates(), "amount pending does not qualify")

	_, err = f.tips.Modify("m1", func(tp *tip.Tip) bool { return tp.AdvanceGrace(t0.Add(2*time.Second), 2*time.Second) })
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, f.ap.Candidates())

	require.NoError(t, f.tips.Remove("m1"))
	assert.Empty(t, f.ap.Candidates())
}

func TestTick_CancelledContext(t *testing.T) {
	f := setupAutoPay(t)
	f.addReady(t, "m1", 1, "0.0005", t0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.ap.Tick(ctx, t0.Add(3*time.Second))
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, tip.ReadyToPay(), f.get(t, "m1").Payment)
	assert.Equal(t, []string{"m1"}, f.ap.Candidates())
}

func TestLabel(t *testing.T) {
	a := tip.New(tip.Identifiers{NotificationID: "m1"}, "alice", "x", t0)
	a.Amount = decimal.RequireFromString("0.00001")
	assert.Equal(t, "chaintip 0.00001 BCH to u/alice (m1)", Label([]tip.Tip{*a}))
}

func TestUUIDv7Generator(t *testing.T) {
	id, err := uuid.Parse(UUIDv7Generator{}.Generate())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}
