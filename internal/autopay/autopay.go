// Package autopay pays qualifying tips in rate-limited batches.
//
// AutoPay listens to the tip collection and keeps the set of tips that
// currently qualify. Each Tick, at most once per minimum wait interval,
// re-filters that set under the current policy and hands the survivors to
// the payment broadcaster as one transaction.
package autopay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/tipsync/internal/chain"
	"github.com/roach88/tipsync/internal/tip"
)

// DefaultMinWait is the minimum interval between two batches.
const DefaultMinWait = 3 * time.Second

// ErrInsufficientFunds is wrapped by broadcasters when the wallet cannot
// cover a batch.
var ErrInsufficientFunds = errors.New("not enough funds")

// Broadcaster builds, signs and broadcasts a payment transaction.
type Broadcaster interface {
	Pay(ctx context.Context, outputs []chain.TxOutput, label string) (txid string, err error)
}

// IDGenerator produces batch ids for logs.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-ordered UUIDv7 batch ids.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Config configures AutoPay.
type Config struct {
	MinWait time.Duration
	IDs     IDGenerator
	Logger  *slog.Logger
}

// Batch describes one payment attempt.
type Batch struct {
	ID     string
	TipIDs []string
	Label  string
	TxID   string
	Err    error
}

// AutoPay schedules automatic payments.
type AutoPay struct {
	cfg         Config
	tips        *tip.Collection
	broadcaster Broadcaster

	mu         sync.Mutex
	candidates map[string]bool
	last       time.Time
}

// New creates AutoPay and registers it as a listener on tips. The interval
// timer starts at start.
func New(cfg Config, tips *tip.Collection, b Broadcaster, start time.Time) *AutoPay {
	if cfg.MinWait <= 0 {
		cfg.MinWait = DefaultMinWait
	}
	if cfg.IDs == nil {
		cfg.IDs = UUIDv7Generator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	a := &AutoPay{
		cfg:         cfg,
		tips:        tips,
		broadcaster: b,
		candidates:  make(map[string]bool),
		last:        start,
	}
	tips.Subscribe(a)
	return a
}

// TipAdded implements tip.Listener.
func (a *AutoPay) TipAdded(t tip.Tip) { a.observe(t) }

// TipUpdated implements tip.Listener.
func (a *AutoPay) TipUpdated(t tip.Tip) { a.observe(t) }

// TipRemoved implements tip.Listener.
func (a *AutoPay) TipRemoved(t tip.Tip) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.candidates, t.ID)
}

func (a *AutoPay) observe(t tip.Tip) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t.Qualifies() {
		a.candidates[t.ID] = true
	} else {
		delete(a.candidates, t.ID)
	}
}

// Candidates returns the ids currently qualifying, sorted.
func (a *AutoPay) Candidates() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.candidates))
	for id := range a.candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Tick pays the qualifying tips if the minimum wait has elapsed since the
// last batch. It returns nil when nothing was attempted. A failed broadcast
// marks every tip in the batch ineligible with the failure reason and is
// reported through Batch.Err, not the error result; the error result is
// only set when ctx ended the attempt.
func (a *AutoPay) Tick(ctx context.Context, now time.Time) (*Batch, error) {
	a.mu.Lock()
	due := now.Sub(a.last) >= a.cfg.MinWait
	a.mu.Unlock()
	if !due {
		return nil, nil
	}

	batch := a.collect()
	if len(batch) == 0 {
		return nil, nil
	}

	outputs := make([]chain.TxOutput, len(batch))
	ids := make([]string, len(batch))
	for i, t := range batch {
		outputs[i] = chain.TxOutput{Address: t.RecipientAddress, Value: chain.ToSatoshis(t.Amount)}
		ids[i] = t.ID
	}
	b := &Batch{ID: a.cfg.IDs.Generate(), TipIDs: ids, Label: Label(batch)}

	a.cfg.Logger.Info("autopay batch",
		"event", "autopay_batch",
		"batch_id", b.ID,
		"tips", len(ids),
		"label", b.Label,
	)

	txid, err := a.broadcaster.Pay(ctx, outputs, b.Label)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	a.mu.Lock()
	a.last = now
	a.mu.Unlock()

	if err != nil {
		b.Err = err
		a.fail(b, err)
		return b, nil
	}

	b.TxID = txid
	for _, id := range ids {
		_, _ = a.tips.Modify(id, func(t *tip.Tip) bool {
			t.AutopayTxID = txid
			return true
		})
	}
	a.cfg.Logger.Info("autopay broadcast",
		"event", "autopay_paid",
		"batch_id", b.ID,
		"txid", txid,
	)
	return b, nil
}

// collect re-evaluates every candidate and returns those still qualifying,
// in creation order.
func (a *AutoPay) collect() []tip.Tip {
	var batch []tip.Tip
	for _, id := range a.Candidates() {
		// Modify re-derives eligibility under the current policy.
		if _, err := a.tips.Modify(id, func(*tip.Tip) bool { return false }); err != nil {
			a.TipRemoved(tip.Tip{ID: id})
			continue
		}
		t, ok := a.tips.Get(id)
		if !ok || !t.Qualifies() || !t.Amount.IsPositive() {
			continue
		}
		batch = append(batch, t)
	}
	sort.SliceStable(batch, func(i, j int) bool {
		if !batch[i].CreatedAt.Equal(batch[j].CreatedAt) {
			return batch[i].CreatedAt.Before(batch[j].CreatedAt)
		}
		return batch[i].ID < batch[j].ID
	})
	return batch
}

func (a *AutoPay) fail(b *Batch, err error) {
	reason := err.Error()
	if errors.Is(err, ErrInsufficientFunds) {
		reason = ErrInsufficientFunds.Error()
	}
	for _, id := range b.TipIDs {
		_, _ = a.tips.Modify(id, func(t *tip.Tip) bool {
			if t.Payment.State == tip.PaymentPaid {
				return false
			}
			t.Payment = tip.AutopayError(reason)
			return true
		})
	}
	a.cfg.Logger.Warn("autopay broadcast failed",
		"event", "autopay_failed",
		"batch_id", b.ID,
		"reason", reason,
	)
}

// Label is the wallet history label of a batch transaction.
func Label(batch []tip.Tip) string {
	parts := make([]string, len(batch))
	for i, t := range batch {
		parts[i] = fmt.Sprintf("%s BCH to u/%s (%s)", t.Amount.String(), t.Username, t.ID)
	}
	return "chaintip " + strings.Join(parts, ", ")
}
