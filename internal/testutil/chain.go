package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/tipsync/internal/chain"
)

// Broadcast is one payment made through FakeChain.Pay.
type Broadcast struct {
	TxID    string
	Outputs []chain.TxOutput
	Label   string
}

// FakeChain is an in-memory blockchain: it implements chain.Client and acts
// as the payment broadcaster, mining every successful payment as a
// transaction so subscribers are notified.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
// Subscription callbacks run synchronously on the goroutine that mined the
// transaction, outside the lock.
type FakeChain struct {
	mu      sync.Mutex
	params  chain.Params
	wallet  string
	ids     *SequenceGenerator
	txs     map[string]*chain.Transaction
	history map[string][]chain.HistoryEntry
	subs    map[string]func(string)
	height  int64

	payErrs    []error
	broadcasts []Broadcast
	txFetches  map[string]int
}

// NewFakeChain creates a chain whose payments spend from wallet.
func NewFakeChain(params chain.Params, wallet string) *FakeChain {
	return &FakeChain{
		params:    params,
		wallet:    wallet,
		ids:       NewSequenceGenerator("tx"),
		txs:       make(map[string]*chain.Transaction),
		history:   make(map[string][]chain.HistoryEntry),
		subs:      make(map[string]func(string)),
		txFetches: make(map[string]int),
	}
}

// FailNextPay makes the next Pay calls fail with errs, one per call.
func (f *FakeChain) FailNextPay(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payErrs = append(f.payErrs, errs...)
}

// Broadcasts returns the successful payments so far.
func (f *FakeChain) Broadcasts() []Broadcast {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Broadcast(nil), f.broadcasts...)
}

// Subscribed returns the subscribed fingerprints, sorted.
func (f *FakeChain) Subscribed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.subs))
	for fp := range f.subs {
		out = append(out, fp)
	}
	sort.Strings(out)
	return out
}

// TxFetches returns how often txid was fetched.
func (f *FakeChain) TxFetches(txid string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txFetches[txid]
}

// Mine records tx and notifies subscribers of every address it touches. An
// empty TxID is filled in. Mine returns the txid.
func (f *FakeChain) Mine(tx chain.Transaction) (string, error) {
	f.mu.Lock()
	if tx.TxID == "" {
		tx.TxID = f.ids.Generate()
	}
	if _, dup := f.txs[tx.TxID]; dup {
		f.mu.Unlock()
		return "", fmt.Errorf("fake chain: duplicate txid %s", tx.TxID)
	}
	f.height++
	stored := tx
	f.txs[tx.TxID] = &stored

	touched := make(map[string]bool)
	var addrs []string
	for _, in := range tx.Inputs {
		addrs = append(addrs, in.Address)
	}
	for _, out := range tx.Outputs {
		addrs = append(addrs, out.Address)
	}

	var notify []func()
	for _, addr := range addrs {
		fp, err := f.params.Fingerprint(addr)
		if err != nil || touched[fp] {
			continue
		}
		touched[fp] = true
		f.history[fp] = append(f.history[fp], chain.HistoryEntry{TxID: tx.TxID, Height: f.height})
		if cb, ok := f.subs[fp]; ok {
			fp := fp
			notify = append(notify, func() { cb(fp) })
		}
	}
	f.mu.Unlock()

	for _, n := range notify {
		n()
	}
	return tx.TxID, nil
}

// Pay broadcasts a payment from the wallet and mines it.
func (f *FakeChain) Pay(ctx context.Context, outputs []chain.TxOutput, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	if len(f.payErrs) > 0 {
		err := f.payErrs[0]
		f.payErrs = f.payErrs[1:]
		f.mu.Unlock()
		return "", err
	}
	f.mu.Unlock()

	txid, err := f.Mine(chain.Transaction{
		Inputs:  []chain.TxInput{{Address: f.wallet}},
		Outputs: append([]chain.TxOutput(nil), outputs...),
	})
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	f.broadcasts = append(f.broadcasts, Broadcast{TxID: txid, Outputs: outputs, Label: label})
	f.mu.Unlock()
	return txid, nil
}

// Subscribe implements chain.Client.
func (f *FakeChain) Subscribe(ctx context.Context, fingerprints []string, notify func(string)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fp := range fingerprints {
		f.subs[fp] = notify
	}
	return nil
}

// Unsubscribe implements chain.Client.
func (f *FakeChain) Unsubscribe(_ context.Context, fingerprints []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fp := range fingerprints {
		delete(f.subs, fp)
	}
	return nil
}

// History implements chain.Client.
func (f *FakeChain) History(ctx context.Context, fingerprint string) ([]chain.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chain.HistoryEntry(nil), f.history[fingerprint]...), nil
}

// Transaction implements chain.Client.
func (f *FakeChain) Transaction(ctx context.Context, txid string) (*chain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txFetches[txid]++
	tx, ok := f.txs[txid]
	if !ok {
		return nil, errors.New("fake chain: unknown transaction " + txid)
	}
	c := *tx
	c.Inputs = append([]chain.TxInput(nil), tx.Inputs...)
	c.Outputs = append([]chain.TxOutput(nil), tx.Outputs...)
	return &c, nil
}
