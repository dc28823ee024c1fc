// Package watcher reconciles on-chain payments with tips.
//
// The Watcher indexes tips by recipient address, subscribes to every
// indexed address, and registers each transaction output paying an indexed
// address as a payment on one of its tips. Outputs paying an address no tip
// uses yet are held as tipless payments and applied when such a tip
// appears. Transactions spending from a relay address reveal the tip's real
// recipient.
//
// Collection listener callbacks only queue work; network I/O happens in
// Flush, which the reconciliation loop calls once per cycle.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/roach88/tipsync/internal/chain"
	"github.com/roach88/tipsync/internal/tip"
)

// Config configures a Watcher.
type Config struct {
	Params chain.Params

	// Notify is handed to the chain client as the subscription callback.
	// It runs on the client's goroutine and must not block; the usual
	// implementation enqueues the fingerprint for the reconciliation loop,
	// which then calls MarkDirty. Nil marks the fingerprint dirty directly.
	Notify func(fingerprint string)

	Logger *slog.Logger
}

// Watcher is the blockchain side of reconciliation.
type Watcher struct {
	cfg    Config
	client chain.Client
	tips   *tip.Collection

	mu         sync.Mutex
	byAddress  map[string][]string // canonical address -> tip ids, oldest first
	byTip      map[string]string   // tip id -> canonical address
	addrByFP   map[string]string
	fpByAddr   map[string]string
	subscribed map[string]bool
	toSub      map[string]bool
	toUnsub    map[string]bool
	dirty      map[string]bool
	arrived    []string // addresses that gained their first tip
	seenTx     map[string]bool
	tipless    map[string]map[string]decimal.Decimal // address -> txid -> amount
	forwards   map[string]string                     // relay address -> forward destination
}

// New creates a Watcher and registers it as a listener on tips.
func New(cfg Config, client chain.Client, tips *tip.Collection) *Watcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	w := &Watcher{
		cfg:        cfg,
		client:     client,
		tips:       tips,
		byAddress:  make(map[string][]string),
		byTip:      make(map[string]string),
		addrByFP:   make(map[string]string),
		fpByAddr:   make(map[string]string),
		subscribed: make(map[string]bool),
		toSub:      make(map[string]bool),
		toUnsub:    make(map[string]bool),
		dirty:      make(map[string]bool),
		seenTx:     make(map[string]bool),
		tipless:    make(map[string]map[string]decimal.Decimal),
		forwards:   make(map[string]string),
	}
	if w.cfg.Notify == nil {
		w.cfg.Notify = w.MarkDirty
	}
	tips.Subscribe(w)
	return w
}

// TipAdded implements tip.Listener.
func (w *Watcher) TipAdded(t tip.Tip) { w.track(t) }

// TipUpdated implements tip.Listener.
func (w *Watcher) TipUpdated(t tip.Tip) { w.track(t) }

// TipRemoved implements tip.Listener.
func (w *Watcher) TipRemoved(t tip.Tip) { w.untrack(t.ID) }

func (w *Watcher) track(t tip.Tip) {
	if t.RecipientAddress == "" {
		return
	}
	addr, err := w.cfg.Params.Canonical(t.RecipientAddress)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.byTip[t.ID]; ok {
		return
	}
	w.byTip[t.ID] = addr
	w.byAddress[addr] = append(w.byAddress[addr], t.ID)
	if len(w.byAddress[addr]) > 1 {
		return
	}

	fp, err := w.cfg.Params.Fingerprint(addr)
	if err != nil {
		return
	}
	w.fpByAddr[addr] = fp
	w.addrByFP[fp] = addr
	delete(w.toUnsub, fp)
	if !w.subscribed[fp] {
		w.toSub[fp] = true
	}
	w.arrived = append(w.arrived, addr)
}

func (w *Watcher) untrack(tipID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	addr, ok := w.byTip[tipID]
	if !ok {
		return
	}
	delete(w.byTip, tipID)

	ids := w.byAddress[addr]
	for i, id := range ids {
		if id == tipID {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) > 0 {
		w.byAddress[addr] = ids
		return
	}

	delete(w.byAddress, addr)
	fp := w.fpByAddr[addr]
	delete(w.fpByAddr, addr)
	delete(w.addrByFP, fp)
	delete(w.toSub, fp)
	delete(w.dirty, fp)
	if w.subscribed[fp] {
		w.toUnsub[fp] = true
	}
}

// MarkDirty schedules a history scan of fingerprint on the next Flush.
func (w *Watcher) MarkDirty(fingerprint string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.addrByFP[fingerprint]; ok {
		w.dirty[fingerprint] = true
	}
}

// Tracked returns the number of distinct addresses being watched.
func (w *Watcher) Tracked() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.byAddress)
}

// TiplessCount returns the number of held tipless payments.
func (w *Watcher) TiplessCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, m := range w.tipless {
		n += len(m)
	}
	return n
}

// Flush applies held payments to newly tracked addresses, updates the
// subscriptions, and scans the history of every dirty address. Work that
// fails stays queued for the next Flush.
func (w *Watcher) Flush(ctx context.Context) error {
	w.applyHeld()

	if err := w.syncSubscriptions(ctx); err != nil {
		return err
	}

	for _, fp := range w.takeDirty() {
		if err := w.scan(ctx, fp); err != nil {
			w.MarkDirty(fp)
			return err
		}
	}
	return nil
}

func (w *Watcher) syncSubscriptions(ctx context.Context) error {
	w.mu.Lock()
	subs := sortedKeys(w.toSub)
	unsubs := sortedKeys(w.toUnsub)
	w.mu.Unlock()

	if len(subs) > 0 {
		if err := w.client.Subscribe(ctx, subs, w.cfg.Notify); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		w.mu.Lock()
		for _, fp := range subs {
			delete(w.toSub, fp)
			w.subscribed[fp] = true
			if _, ok := w.addrByFP[fp]; ok {
				w.dirty[fp] = true
			}
		}
		w.mu.Unlock()
		w.cfg.Logger.Debug("subscribed", "event", "subscribe", "count", len(subs))
	}

	if len(unsubs) > 0 {
		if err := w.client.Unsubscribe(ctx, unsubs); err != nil {
			return fmt.Errorf("unsubscribe: %w", err)
		}
		w.mu.Lock()
		for _, fp := range unsubs {
			delete(w.toUnsub, fp)
			delete(w.subscribed, fp)
		}
		w.mu.Unlock()
		w.cfg.Logger.Debug("unsubscribed", "event", "unsubscribe", "count", len(unsubs))
	}
	return nil
}

func (w *Watcher) takeDirty() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	fps := sortedKeys(w.dirty)
	w.dirty = make(map[string]bool)
	return fps
}

func (w *Watcher) scan(ctx context.Context, fp string) error {
	history, err := w.client.History(ctx, fp)
	if err != nil {
		return fmt.Errorf("history %s: %w", fp, err)
	}
	for _, h := range history {
		w.mu.Lock()
		seen := w.seenTx[h.TxID]
		w.mu.Unlock()
		if seen {
			continue
		}

		tx, err := w.client.Transaction(ctx, h.TxID)
		if err != nil {
			return fmt.Errorf("transaction %s: %w", h.TxID, err)
		}
		w.process(tx)

		w.mu.Lock()
		w.seenTx[h.TxID] = true
		w.mu.Unlock()
	}
	return nil
}

// process registers the outputs of tx that pay tracked addresses and
// records relay forwards.
func (w *Watcher) process(tx *chain.Transaction) {
	forwarding := false
	var dest string
	if len(tx.Outputs) > 0 {
		dest = w.canonical(tx.Outputs[0].Address)
	}
	for _, in := range tx.Inputs {
		addr := w.canonical(in.Address)
		if addr == "" || !w.cfg.Params.IsRelay(addr) || dest == "" {
			continue
		}
		forwarding = true
		ids := w.lookup(addr)
		if len(ids) == 0 {
			w.mu.Lock()
			w.forwards[addr] = dest
			w.mu.Unlock()
			continue
		}
		for _, id := range ids {
			w.setRealRecipient(id, dest, tx.TxID)
		}
	}

	assigned := make(map[string]bool)
	for _, out := range tx.Outputs {
		addr := w.canonical(out.Address)
		if addr == "" {
			continue
		}
		value := chain.FromSatoshis(out.Value)

		ids := w.lookup(addr)
		if len(ids) == 0 {
			if !forwarding {
				w.hold(addr, tx.TxID, value)
			}
			continue
		}
		w.register(ids, tx.TxID, value, assigned)
	}
}

// register credits one output to the first tip at its address that has not
// been paid and has not already been credited from this transaction.
func (w *Watcher) register(ids []string, txid string, value decimal.Decimal, assigned map[string]bool) {
	id := w.pick(ids, txid, assigned)
	if id == "" {
		return
	}
	assigned[id] = true

	changed, err := w.tips.Modify(id, func(t *tip.Tip) bool {
		return t.RegisterPayment(txid, value)
	})
	if err != nil || !changed {
		return
	}
	w.cfg.Logger.Info("payment registered",
		"event", "payment_registered",
		"tip_id", id,
		"txid", txid,
		"amount", value.String(),
	)
}

func (w *Watcher) pick(ids []string, txid string, assigned map[string]bool) string {
	var fallback string
	for _, id := range ids {
		if assigned[id] {
			continue
		}
		t, ok := w.tips.Get(id)
		if !ok {
			continue
		}
		if _, has := t.Payments[txid]; has {
			continue
		}
		if len(t.Payments) == 0 {
			return id
		}
		if fallback == "" {
			fallback = id
		}
	}
	return fallback
}

func (w *Watcher) setRealRecipient(id, dest, txid string) {
	changed, err := w.tips.Modify(id, func(t *tip.Tip) bool {
		return t.SetRealRecipient(dest)
	})
	if err == nil && changed {
		w.cfg.Logger.Info("relay forward observed",
			"event", "relay_forward",
			"tip_id", id,
			"txid", txid,
			"real_recipient", dest,
		)
	}
}

func (w *Watcher) hold(addr, txid string, value decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m := w.tipless[addr]
	if m == nil {
		m = make(map[string]decimal.Decimal)
		w.tipless[addr] = m
	}
	m[txid] = m[txid].Add(value)
}

// applyHeld credits tipless payments and relay forwards to addresses that
// gained their first tip since the last Flush.
func (w *Watcher) applyHeld() {
	w.mu.Lock()
	arrived := w.arrived
	w.arrived = nil
	w.mu.Unlock()

	for _, addr := range arrived {
		w.mu.Lock()
		held := w.tipless[addr]
		delete(w.tipless, addr)
		dest, forwarded := w.forwards[addr]
		delete(w.forwards, addr)
		w.mu.Unlock()

		ids := w.lookup(addr)
		if len(ids) == 0 {
			continue
		}
		txids := make([]string, 0, len(held))
		for txid := range held {
			txids = append(txids, txid)
		}
		sort.Strings(txids)
		for _, txid := range txids {
			w.register(ids, txid, held[txid], make(map[string]bool))
		}
		if forwarded {
			for _, id := range ids {
				w.setRealRecipient(id, dest, "")
			}
		}
	}
}

func (w *Watcher) lookup(addr string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.byAddress[addr]...)
}

func (w *Watcher) canonical(addr string) string {
	c, err := w.cfg.Params.Canonical(addr)
	if err != nil {
		return ""
	}
	return c
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
