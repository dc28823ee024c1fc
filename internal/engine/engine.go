package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/tipsync/internal/amount"
	"github.com/roach88/tipsync/internal/autopay"
	"github.com/roach88/tipsync/internal/chain"
	"github.com/roach88/tipsync/internal/digest"
	"github.com/roach88/tipsync/internal/inbox"
	"github.com/roach88/tipsync/internal/store"
	"github.com/roach88/tipsync/internal/tip"
	"github.com/roach88/tipsync/internal/watcher"
)

const (
	// DefaultGrace is how long a tip stays amount-pending before it becomes
	// ready to pay.
	DefaultGrace = 2 * time.Second

	// DefaultPollLimit bounds the unread items fetched per cycle.
	DefaultPollLimit = 100

	// DefaultInterval is the idle sleep between cycles.
	DefaultInterval = time.Second

	// DefaultBackoff is the sleep after a failed cycle.
	DefaultBackoff = 30 * time.Second
)

// TipStore persists the collection. *store.Store implements it.
type TipStore interface {
	Load(ctx context.Context) (store.Document, error)
	IDs(ctx context.Context) ([]string, error)
	Save(ctx context.Context, doc store.Document) error
}

// Config configures an Engine. Zero durations and limits take the package
// defaults.
type Config struct {
	// Bot is the tipping bot's account name.
	Bot    string
	Params chain.Params
	Policy tip.Policy

	// Resolver converts tip amounts. Required.
	Resolver *amount.Resolver
	Defaults digest.DefaultsFunc

	MarkRead  bool
	BatchSize int

	Grace          time.Duration
	AutopayMinWait time.Duration
	BatchIDs       autopay.IDGenerator

	PollLimit int
	Interval  time.Duration
	Backoff   time.Duration

	Now    func() time.Time
	Logger *slog.Logger

	// Metrics are the instruments to update. When nil they are created on
	// Registerer, or on a private registry when that is nil too. Engines
	// that replace each other over one registry must share one Metrics.
	Metrics    *Metrics
	Registerer prometheus.Registerer
}

// CycleResult summarises one cycle.
type CycleResult struct {
	Cycle    int64
	Digested int
	Batch    *autopay.Batch
}

// Stats is a point-in-time view of the engine's queues.
type Stats struct {
	Tips           int
	PendingAmounts int
	Buffered       int
	Tracked        int
	Tipless        int
}

// Engine is the single-writer reconciliation loop.
//
// Thread-safety model:
//   - RemoveTip(), SetPolicy(), SetAutopay(), Stop(): safe from any goroutine
//   - Snapshot(), Get(), Stats(): safe from any goroutine
//   - Run() / Cycle(): must be called from exactly one goroutine
type Engine struct {
	cfg    Config
	logger *slog.Logger

	tips     *tip.Collection
	buffer   *digest.Buffer
	digester *digest.Digester
	watcher  *watcher.Watcher
	autopay  *autopay.AutoPay

	inbox inbox.Inbox
	store TipStore

	queue   *eventQueue
	clock   *Clock
	metrics *Metrics

	restored  bool
	restoring bool
	dirty     atomic.Bool

	mu       sync.Mutex
	payments map[string]int // tip id -> registered payment count
}

// New wires an engine around its collaborators. st may be nil, in which
// case nothing is persisted.
func New(cfg Config, ib inbox.Inbox, client chain.Client, b autopay.Broadcaster, st TipStore) *Engine {
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if cfg.PollLimit <= 0 {
		cfg.PollLimit = DefaultPollLimit
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(cfg.Registerer)
	}

	e := &Engine{
		cfg:      cfg,
		logger:   cfg.Logger,
		tips:     tip.NewCollection(cfg.Policy),
		buffer:   digest.NewBuffer(),
		inbox:    ib,
		store:    st,
		queue:    newEventQueue(),
		clock:    NewClock(),
		metrics:  cfg.Metrics,
		payments: make(map[string]int),
	}

	e.digester = digest.New(digest.Config{
		Bot:       cfg.Bot,
		Params:    cfg.Params,
		Resolver:  cfg.Resolver,
		Defaults:  cfg.Defaults,
		MarkRead:  cfg.MarkRead,
		BatchSize: cfg.BatchSize,
		Now:       cfg.Now,
		Logger:    cfg.Logger,
	}, e.tips, e.buffer, ib)

	e.watcher = watcher.New(watcher.Config{
		Params: cfg.Params,
		Notify: e.notifyChain,
		Logger: cfg.Logger,
	}, client, e.tips)

	e.autopay = autopay.New(autopay.Config{
		MinWait: cfg.AutopayMinWait,
		IDs:     cfg.BatchIDs,
		Logger:  cfg.Logger,
	}, e.tips, b, cfg.Now())

	e.tips.Subscribe(e)
	return e
}

// notifyChain is the chain subscription callback. It runs on the chain
// client's goroutine.
func (e *Engine) notifyChain(fingerprint string) {
	e.queue.Enqueue(Event{Type: EventTypeChain, Fingerprint: fingerprint})
}

// TipAdded implements tip.Listener.
func (e *Engine) TipAdded(t tip.Tip) { e.observe(t) }

// TipUpdated implements tip.Listener.
func (e *Engine) TipUpdated(t tip.Tip) { e.observe(t) }

// TipRemoved implements tip.Listener.
func (e *Engine) TipRemoved(t tip.Tip) {
	e.dirty.Store(true)
	e.mu.Lock()
	delete(e.payments, t.ID)
	e.mu.Unlock()
}

func (e *Engine) observe(t tip.Tip) {
	e.dirty.Store(true)

	e.mu.Lock()
	n := len(t.Payments)
	prev := e.payments[t.ID]
	e.payments[t.ID] = n
	e.mu.Unlock()

	if n > prev && !e.restoring {
		e.metrics.PaymentsRegistered.Add(float64(n - prev))
	}
}

// Subscribe registers an observer of tip changes. Callbacks run on the loop
// goroutine and must not block.
func (e *Engine) Subscribe(l tip.Listener) {
	e.tips.Subscribe(l)
}

// Snapshot returns a copy of every tip, oldest first.
func (e *Engine) Snapshot() []tip.Tip {
	return e.tips.Snapshot()
}

// Get returns a copy of one tip.
func (e *Engine) Get(id string) (tip.Tip, bool) {
	return e.tips.Get(id)
}

// Policy returns the eligibility policy in force.
func (e *Engine) Policy() tip.Policy {
	return e.tips.Policy()
}

// Stats reports queue depths.
func (e *Engine) Stats() Stats {
	return Stats{
		Tips:           e.tips.Len(),
		PendingAmounts: e.digester.Pending(),
		Buffered:       e.buffer.Len(),
		Tracked:        e.watcher.Tracked(),
		Tipless:        e.watcher.TiplessCount(),
	}
}

// Metrics returns the engine's instruments.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// RemoveTip asks the loop to drop a tip at the start of the next cycle.
// Returns false if the engine has stopped.
func (e *Engine) RemoveTip(id string) bool {
	return e.queue.Enqueue(Event{Type: EventTypeRemoveTip, TipID: id})
}

// SetPolicy asks the loop to replace the eligibility policy at the start
// of the next cycle. Every tip is re-evaluated and failed-broadcast markers
// are cleared.
func (e *Engine) SetPolicy(p tip.Policy) bool {
	return e.queue.Enqueue(Event{Type: EventTypeSetPolicy, Policy: &p})
}

// SetAutopay toggles autopay globally, keeping the rest of the policy.
func (e *Engine) SetAutopay(enabled bool) bool {
	p := e.tips.Policy()
	p.AutopayEnabled = enabled
	return e.SetPolicy(p)
}

// Stop closes the event queue. Run returns after the current cycle.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Run cycles until ctx is cancelled, Stop is called, or the inbox rejects
// our credentials.
//
// Cancellation is cooperative: a cycle in progress runs to completion and
// Run returns before the next one. On the way out, buffered association
// events are discarded (their items are still unread, so a restart replays
// them) and the collection is persisted.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "bot", e.cfg.Bot)
	defer e.shutdown(context.WithoutCancel(ctx))

	cycleCtx := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			e.logger.Info("engine stopping: context cancelled")
			return ctx.Err()
		}
		if e.queue.Closed() {
			e.logger.Info("engine stopping: queue closed")
			return nil
		}

		wait, wakeEarly := e.cfg.Interval, true
		if _, err := e.Cycle(cycleCtx); err != nil {
			if IsAuthError(err) {
				e.logger.Error("engine stopping: authentication failed",
					"event", "auth_failed",
					"error", err,
				)
				return err
			}
			e.logger.Warn("cycle failed, backing off",
				"event", "cycle_failed",
				"backoff", e.cfg.Backoff,
				"error", err,
			)
			wait, wakeEarly = e.cfg.Backoff, false
		}
		e.sleep(ctx, wait, wakeEarly)
	}
}

// sleep waits for d or until ctx ends. With wakeEarly, a queued event or
// Stop also ends the wait.
func (e *Engine) sleep(ctx context.Context, d time.Duration, wakeEarly bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	var wake <-chan struct{}
	if wakeEarly {
		wake = e.queue.Wait()
	}
	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-wake:
	}
}

func (e *Engine) shutdown(ctx context.Context) {
	e.queue.Close()
	if n := e.buffer.Discard(e.logger); n > 0 {
		e.logger.Info("discarded buffered associations", "count", n)
	}
	if err := e.persist(ctx); err != nil {
		e.logger.Error("final save failed", "event", "persist_failed", "error", err)
	}
	e.logger.Info("engine stopped", "cycle", e.clock.Current())
}

// Cycle runs one reconciliation pass. It must not be called concurrently
// with itself or with Run.
func (e *Engine) Cycle(ctx context.Context) (res CycleResult, err error) {
	started := time.Now()
	defer func() {
		e.metrics.CycleDuration.Observe(time.Since(started).Seconds())
		e.updateGauges()
		if err != nil {
			e.metrics.CycleErrors.WithLabelValues(errorCode(err)).Inc()
		}
	}()

	if !e.restored {
		if err := e.restore(ctx); err != nil {
			return res, err
		}
		e.restored = true
	}

	res.Cycle = e.clock.Next()
	e.drainEvents()

	digested, err := e.poll(ctx)
	res.Digested = digested
	if err != nil {
		return res, err
	}

	if err := e.digester.Enrich(ctx); err != nil {
		return res, classify("resolve amounts", err)
	}

	if err := e.watcher.Flush(ctx); err != nil {
		return res, classify("watch addresses", err)
	}

	now := e.cfg.Now()
	e.tips.ModifyAll(func(t *tip.Tip) bool {
		return t.AdvanceGrace(now, e.cfg.Grace)
	})

	batch, err := e.autopay.Tick(ctx, now)
	if err != nil {
		return res, classify("autopay", err)
	}
	if batch != nil {
		res.Batch = batch
		result := "paid"
		if batch.Err != nil {
			result = "failed"
		}
		e.metrics.AutopayBatches.WithLabelValues(result).Inc()
	}

	if err := e.persist(ctx); err != nil {
		return res, err
	}
	if err := e.digester.FlushRead(ctx); err != nil {
		return res, classify("mark read", err)
	}
	if err := e.persist(ctx); err != nil {
		return res, err
	}

	e.logger.Debug("cycle complete",
		"cycle", res.Cycle,
		"digested", res.Digested,
		"tips", e.tips.Len(),
	)
	return res, nil
}

// poll digests unread items. Items already held in the association buffer
// stay unread until their tip appears, so they do not count toward
// PollLimit: while a full page holds fewer than PollLimit new items the
// next page is requested past its last item.
func (e *Engine) poll(ctx context.Context) (int, error) {
	digested, fresh := 0, 0
	after := ""
	for {
		items, err := e.inbox.ListUnread(ctx, after, e.cfg.PollLimit)
		if err != nil {
			return digested, classify("list unread", err)
		}
		for _, item := range items {
			if !e.buffer.Holds(item.ID) {
				fresh++
			}
			outcome, err := e.digester.Digest(item)
			if err != nil {
				e.logger.Warn("digest failed",
					"item_id", item.ID,
					"error", err,
				)
				continue
			}
			e.metrics.ItemsDigested.WithLabelValues(outcome.String()).Inc()
			digested++
		}
		if len(items) < e.cfg.PollLimit || fresh >= e.cfg.PollLimit {
			return digested, nil
		}
		after = items[len(items)-1].ID
	}
}

func (e *Engine) drainEvents() {
	for {
		ev, ok := e.queue.TryDequeue()
		if !ok {
			return
		}
		switch ev.Type {
		case EventTypeChain:
			e.watcher.MarkDirty(ev.Fingerprint)

		case EventTypeRemoveTip:
			if err := e.tips.Remove(ev.TipID); err != nil {
				e.logger.Warn("remove tip failed", "tip_id", ev.TipID, "error", err)
				continue
			}
			e.logger.Info("tip removed", "event", "tip_removed", "tip_id", ev.TipID)

		case EventTypeSetPolicy:
			if ev.Policy == nil {
				continue
			}
			n := e.tips.SetPolicy(*ev.Policy)
			e.logger.Info("policy replaced",
				"event", "policy_changed",
				"autopay", ev.Policy.AutopayEnabled,
				"changed", n,
			)

		default:
			e.logger.Warn("unknown event", "type", ev.Type.String())
		}
	}
}

// restore loads the saved collection. An empty store or one written under
// another version is not an error: the collection is rebuilt from the
// inbox instead, and the stale document's items are marked unread so the
// inbox returns them again.
func (e *Engine) restore(ctx context.Context) error {
	if e.store == nil {
		return nil
	}

	doc, err := e.store.Load(ctx)
	switch {
	case errors.Is(err, store.ErrEmpty):
		e.logger.Info("no saved tips, importing from inbox", "event", "reimport")
		return nil

	case errors.Is(err, store.ErrVersionMismatch):
		ids, err := e.store.IDs(ctx)
		if err != nil {
			return storeError("list stale tips", err)
		}
		if len(ids) > 0 {
			if err := e.inbox.MarkUnread(ctx, ids); err != nil {
				return classify("mark stale items unread", err)
			}
		}
		e.logger.Warn("saved tips have another version, importing from inbox",
			"event", "reimport",
			"found", doc.Version,
			"want", store.Version,
			"stale", len(ids),
		)
		e.dirty.Store(true)
		return nil

	case err != nil:
		return storeError("load tips", err)
	}

	e.clock.Advance(doc.Cycle)
	now := e.cfg.Now()

	e.restoring = true
	defer func() { e.restoring = false }()

	for _, r := range doc.Records() {
		t := tip.FromRecord(r, now)
		if err := e.tips.Add(t); err != nil {
			e.logger.Warn("skipping saved tip", "tip_id", r.ID, "error", err)
			continue
		}
		if snap, ok := e.tips.Get(r.ID); ok {
			e.digester.Requeue(snap)
		}
	}
	e.dirty.Store(false)

	e.logger.Info("tips restored",
		"event", "restored",
		"count", len(doc.Tips),
		"cycle", doc.Cycle,
	)
	return nil
}

func (e *Engine) persist(ctx context.Context) error {
	if e.store == nil || !e.dirty.Load() {
		return nil
	}

	snap := e.tips.Snapshot()
	records := make([]tip.Record, len(snap))
	for i := range snap {
		records[i] = snap[i].ToRecord()
	}

	e.dirty.Store(false)
	if err := e.store.Save(ctx, store.NewDocument(e.clock.Current(), records)); err != nil {
		e.dirty.Store(true)
		return storeError("save tips", err)
	}
	e.logger.Debug("tips saved", "count", len(records), "cycle", e.clock.Current())
	return nil
}

func (e *Engine) updateGauges() {
	e.metrics.Tips.Set(float64(e.tips.Len()))
	e.metrics.BufferDepth.Set(float64(e.buffer.Len()))
	e.metrics.TiplessPayments.Set(float64(e.watcher.TiplessCount()))
}

// classify wraps a collaborator failure in a LoopError.
func classify(step string, err error) error {
	if errors.Is(err, inbox.ErrUnauthorized) {
		return &LoopError{Code: ErrCodeAuthFailed, Message: step, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", step, err)
	}
	return transientError(step, err)
}

func errorCode(err error) string {
	var le *LoopError
	if errors.As(err, &le) {
		return string(le.Code)
	}
	return "CANCELLED"
}
