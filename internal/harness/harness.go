package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/roach88/tipsync/internal/amount"
	"github.com/roach88/tipsync/internal/autopay"
	"github.com/roach88/tipsync/internal/chain"
	"github.com/roach88/tipsync/internal/config"
	"github.com/roach88/tipsync/internal/engine"
	"github.com/roach88/tipsync/internal/inbox"
	"github.com/roach88/tipsync/internal/store"
	"github.com/roach88/tipsync/internal/testutil"
	"github.com/roach88/tipsync/internal/tip"
)

// walletSeed derives the autopay wallet address. Scenarios may not use it.
const walletSeed = 99

// defaultRates apply when a scenario names none.
var defaultRates = map[string]string{"USD": "200"}

// Harness drives one scenario. Every collaborator of the engine is an
// in-memory fake and time only moves on advance steps.
type Harness struct {
	scenario *Scenario
	cfg      *config.Config
	params   chain.Params

	inbox    *testutil.FakeInbox
	chain    *testutil.FakeChain
	clock    *testutil.ManualClock
	batchIDs *testutil.SequenceGenerator
	store    *store.Store
	engine   *engine.Engine
	logger   *slog.Logger
	registry prometheus.Registerer
	metrics  *engine.Metrics

	labels map[string]string // canonical address -> label
	result *Result
}

// Option customises a run.
type Option func(*Harness)

// WithLogger sends engine logs to logger instead of discarding them.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) { h.logger = logger }
}

// WithRegisterer records engine metrics on reg. The metrics survive
// restart steps.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(h *Harness) { h.registry = reg }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory database, so scenarios are
// isolated from each other. A restart step keeps the database and replaces
// only the engine. The returned error reports a broken scenario or harness
// failure; unmet expectations are reported through Result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg, err := buildConfig(scenario)
	if err != nil {
		return nil, err
	}
	params, err := cfg.Params()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		scenario: scenario,
		cfg:      cfg,
		params:   params,
		inbox:    testutil.NewFakeInbox(),
		clock:    testutil.NewManualClock(time.Time{}),
		batchIDs: testutil.NewSequenceGenerator("batch"),
		store:    st,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		labels:   make(map[string]string),
		result:   NewResult(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.metrics = engine.NewMetrics(h.registry)

	wallet := testutil.Address(params, walletSeed)
	h.label(wallet, "wallet")
	h.chain = testutil.NewFakeChain(params, wallet)

	for _, c := range scenario.Comments {
		h.inbox.AddComment(testutil.TippingComment(c.ID, c.Body))
	}
	for _, reason := range scenario.Broadcast.Fail {
		h.chain.FailNextPay(broadcastError(reason))
	}

	if err := h.startEngine(); err != nil {
		return nil, err
	}

	ctx := context.Background()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	h.engine.Stop()

	h.collect()
	h.evaluate(scenario.Expect)
	return h.result, nil
}

func buildConfig(s *Scenario) (*config.Config, error) {
	cfg := config.Default()
	c := s.Config
	if c.Autopay != nil {
		cfg.Autopay.Enabled = *c.Autopay
	}
	if c.UseLimit != nil {
		cfg.Autopay.UseLimit = *c.UseLimit
	}
	if c.Limit != "" {
		cfg.Autopay.Limit = c.Limit
	}
	if c.DisallowDefault != nil {
		cfg.Autopay.DisallowDefault = *c.DisallowDefault
	}
	if c.MarkRead != nil {
		cfg.MarkReadDigested = *c.MarkRead
	}
	if c.Grace > 0 {
		cfg.GracePeriod = c.Grace
	}
	if c.AutopayWait > 0 {
		cfg.Autopay.MinWait = c.AutopayWait
	}
	if c.DefaultAmount != "" {
		cfg.DefaultAmount.Amount = c.DefaultAmount
	}
	if c.DefaultCurrency != "" {
		cfg.DefaultAmount.Currency = c.DefaultCurrency
	}
	cfg.Autopay.Overrides = c.Overrides

	cfg.Rates = s.Rates
	if len(cfg.Rates) == 0 {
		cfg.Rates = defaultRates
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scenario config: %w", err)
	}
	return cfg, nil
}

func broadcastError(reason string) error {
	if reason == "insufficient_funds" {
		return fmt.Errorf("wallet: %w", autopay.ErrInsufficientFunds)
	}
	return errors.New(reason)
}

// startEngine builds a new engine on the harness's store and fakes.
func (h *Harness) startEngine() error {
	policy, err := h.cfg.Policy(h.params)
	if err != nil {
		return err
	}
	table, err := h.cfg.AmountTable()
	if err != nil {
		return err
	}
	rates, err := h.cfg.RateSource()
	if err != nil {
		return err
	}

	h.engine = engine.New(engine.Config{
		Bot:            h.cfg.Bot,
		Params:         h.params,
		Policy:         policy,
		Resolver:       amount.NewResolver(table, rates, h.clock.Now),
		Defaults:       h.cfg.Defaults(),
		MarkRead:       h.cfg.MarkReadDigested,
		BatchSize:      h.cfg.BatchSize,
		Grace:          h.cfg.GracePeriod,
		AutopayMinWait: h.cfg.Autopay.MinWait,
		BatchIDs:       h.batchIDs,
		PollLimit:      h.cfg.PollLimit,
		Now:            h.clock.Now,
		Logger:         h.logger,
		Metrics:        h.metrics,
	}, h.inbox, h.chain, h.chain, h.store)
	return nil
}

func (h *Harness) trace(step int, event, format string, args ...any) {
	h.result.Trace = append(h.result.Trace, TraceEvent{
		Step:   step,
		Event:  event,
		Detail: fmt.Sprintf(format, args...),
	})
}

func (h *Harness) execute(ctx context.Context, i int, step Step) error {
	switch {
	case step.Inbox != nil:
		return h.deliver(i, step.Inbox)

	case step.ChainTx != nil:
		return h.mine(i, step.ChainTx)

	case step.Advance > 0:
		h.clock.Advance(step.Advance)
		h.trace(i, "advance", "%s", step.Advance)

	case step.Cycle > 0:
		for n := 0; n < step.Cycle; n++ {
			h.cycle(ctx, i)
		}

	case step.SetAutopay != nil:
		h.engine.SetAutopay(*step.SetAutopay)
		state := "off"
		if *step.SetAutopay {
			state = "on"
		}
		h.trace(i, "set_autopay", "%s", state)

	case step.Remove != "":
		h.engine.RemoveTip(step.Remove)
		h.trace(i, "remove", "%s", step.Remove)

	case step.InboxError != "":
		err := errors.New(step.InboxError)
		if step.InboxError == "unauthorized" {
			err = fmt.Errorf("inbox: %w", inbox.ErrUnauthorized)
		}
		h.inbox.FailNextList(err)
		h.trace(i, "inbox_error", "%s", step.InboxError)

	case step.Restart:
		h.engine.Stop()
		if err := h.startEngine(); err != nil {
			return err
		}
		h.trace(i, "restart", "")
	}
	return nil
}

func (h *Harness) deliver(i int, in *InboxStep) error {
	now := h.clock.Now()
	switch in.Kind {
	case KindTip:
		addr, label, err := h.resolve(*in.To)
		if err != nil {
			return err
		}
		h.inbox.Deliver(testutil.TipMessage(in.ID, in.User, addr, in.Comment, now))
		h.trace(i, "inbox", "%s tip u/%s %s", in.ID, in.User, label)

	case KindClaimed, KindReturned, KindFunded:
		h.inbox.Deliver(testutil.ActionMessage(in.ID, in.Kind, in.Comment, now))
		h.trace(i, "inbox", "%s %s %s", in.ID, in.Kind, in.Comment)

	case KindConfirmation:
		h.inbox.Deliver(testutil.ConfirmationComment(in.ID, in.Comment, in.Body, now))
		h.trace(i, "inbox", "%s confirmation %s", in.ID, in.Comment)

	default:
		h.inbox.Deliver(inbox.Item{
			ID:        in.ID,
			Kind:      inbox.KindMessage,
			Author:    "someone",
			Subject:   "hello",
			Body:      in.Body,
			CreatedAt: now,
		})
		h.trace(i, "inbox", "%s other", in.ID)
	}
	return nil
}

func (h *Harness) mine(i int, tx *TxStep) error {
	from, fromLabel, err := h.resolve(tx.From)
	if err != nil {
		return err
	}
	outputs := make([]chain.TxOutput, len(tx.To))
	for j, out := range tx.To {
		addr, _, err := h.resolve(out.AddressRef)
		if err != nil {
			return err
		}
		value, err := decimal.NewFromString(out.Amount)
		if err != nil {
			return fmt.Errorf("output %d amount %q: %w", j, out.Amount, err)
		}
		outputs[j] = chain.TxOutput{Address: addr, Value: chain.ToSatoshis(value)}
	}

	txid, err := h.chain.Mine(chain.Transaction{
		Inputs:  []chain.TxInput{{Address: from}},
		Outputs: outputs,
	})
	if err != nil {
		return err
	}
	h.trace(i, "chain_tx", "%s from %s", txid, fromLabel)
	return nil
}

func (h *Harness) cycle(ctx context.Context, i int) {
	res, err := h.engine.Cycle(ctx)
	if err != nil {
		var le *engine.LoopError
		code := "ERROR"
		if errors.As(err, &le) {
			code = string(le.Code)
		}
		h.trace(i, "cycle_failed", "cycle %d: %s", res.Cycle, code)
		return
	}
	h.trace(i, "cycle", "cycle %d: digested %d", res.Cycle, res.Digested)

	if b := res.Batch; b != nil {
		if b.Err != nil {
			h.trace(i, "autopay", "%s failed %v: %v", b.ID, b.TipIDs, b.Err)
		} else {
			h.trace(i, "autopay", "%s paid %v in %s", b.ID, b.TipIDs, b.TxID)
		}
	}
}

// resolve turns a reference into an address and its display label.
func (h *Harness) resolve(ref AddressRef) (string, string, error) {
	if ref.Address != "" {
		return ref.Address, h.display(ref.Address), nil
	}
	if ref.Seed <= 0 || ref.Seed >= walletSeed {
		return "", "", fmt.Errorf("address seed %d out of range", ref.Seed)
	}

	seed := byte(ref.Seed)
	if ref.Relay {
		addr := testutil.RelayAddress(h.params, seed)
		return addr, h.label(addr, "relay"+strconv.Itoa(ref.Seed)), nil
	}
	addr := testutil.Address(h.params, seed)
	return addr, h.label(addr, "addr"+strconv.Itoa(ref.Seed)), nil
}

func (h *Harness) label(addr, label string) string {
	if canonical, err := h.params.Canonical(addr); err == nil {
		addr = canonical
	}
	h.labels[addr] = label
	return label
}

// display returns the label of addr, or addr itself when it has none.
func (h *Harness) display(addr string) string {
	if addr == "" {
		return ""
	}
	key := addr
	if canonical, err := h.params.Canonical(addr); err == nil {
		key = canonical
	}
	if label, ok := h.labels[key]; ok {
		return label
	}
	return addr
}

func (h *Harness) collect() {
	for _, t := range h.engine.Snapshot() {
		h.result.Tips = append(h.result.Tips, h.view(t))
	}
	for _, b := range h.chain.Broadcasts() {
		bv := BroadcastView{TxID: b.TxID, Outputs: make([]OutputView, len(b.Outputs))}
		for j, out := range b.Outputs {
			bv.Outputs[j] = OutputView{
				To:     h.display(out.Address),
				Amount: chain.FromSatoshis(out.Value).String(),
			}
		}
		h.result.Broadcasts = append(h.result.Broadcasts, bv)
	}
}

func (h *Harness) view(t tip.Tip) TipView {
	v := TipView{
		ID:            t.ID,
		Reference:     t.Reference,
		Username:      t.Username,
		Recipient:     h.display(t.RecipientAddress),
		RealRecipient: h.display(t.RealRecipientAddress),
		DefaultUsed:   t.DefaultAmountUsed,
		Payment:       t.Payment.String(),
		Acceptance:    string(t.Acceptance),
		Confirmation:  string(t.Confirmation),
		Read:          string(t.Read),
		AutopayTxID:   t.AutopayTxID,
	}
	if !t.Amount.IsZero() {
		v.Amount = t.Amount.String()
	}
	if received := t.AmountReceived(); !received.IsZero() {
		v.Received = received.String()
	}
	return v
}
