// Package digest turns inbox notifications into tip state.
//
// The Digester classifies each item, creates tips for tip-creation
// notifications, and applies acceptance and confirmation events to the tip
// they reference. Events whose tip does not exist yet wait in a Buffer and
// are applied the moment that tip is created. Amounts are resolved in a
// separate enrichment step that fetches the tipping comments in bounded
// batches.
package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/tipsync/internal/amount"
	"github.com/roach88/tipsync/internal/chain"
	"github.com/roach88/tipsync/internal/inbox"
	"github.com/roach88/tipsync/internal/tip"
)

// DefaultBatchSize bounds the comment ids fetched per enrichment round.
const DefaultBatchSize = 10

// Outcome is the result of digesting one item.
type Outcome int

const (
	Ignored Outcome = iota
	CreatedTip
	Associated
	Deferred
)

func (o Outcome) String() string {
	switch o {
	case CreatedTip:
		return "created"
	case Associated:
		return "associated"
	case Deferred:
		return "deferred"
	default:
		return "ignored"
	}
}

// DefaultsFunc returns the default amount for a recipient. linked reports
// whether the recipient already had an address linked.
type DefaultsFunc func(username string, linked bool) amount.Default

// Config configures a Digester.
type Config struct {
	// Bot is the account whose notifications describe tips.
	Bot string

	// Params recognises relay addresses and canonicalises addresses.
	Params chain.Params

	Resolver *amount.Resolver
	Defaults DefaultsFunc

	// MarkRead marks digested tip and association items read.
	MarkRead bool

	// BatchSize bounds each comment fetch. Zero means DefaultBatchSize.
	BatchSize int

	Now    func() time.Time
	Logger *slog.Logger
}

type pendingAmount struct {
	tipID     string
	commentID string // empty when there is no tipping comment to fetch
}

// Digester applies inbox items to a tip collection.
//
// Not safe for concurrent use: it is driven by the reconciliation loop.
type Digester struct {
	cfg        Config
	tips       *tip.Collection
	buffer     *Buffer
	inbox      inbox.Inbox
	classifier *Classifier
	parser     *amount.InstructionParser

	pending  []pendingAmount
	readable []string
}

// New creates a Digester.
func New(cfg Config, tips *tip.Collection, buffer *Buffer, ib inbox.Inbox) *Digester {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Defaults == nil {
		cfg.Defaults = func(string, bool) amount.Default { return amount.Default{} }
	}
	return &Digester{
		cfg:        cfg,
		tips:       tips,
		buffer:     buffer,
		inbox:      ib,
		classifier: NewClassifier(cfg.Bot),
		parser:     amount.NewInstructionParser(cfg.Bot),
	}
}

// Digest classifies item and applies it. Digesting the same item again
// yields the same tip state.
func (d *Digester) Digest(item inbox.Item) (Outcome, error) {
	c := d.classifier.Classify(item)

	switch c.Shape {
	case ShapeAcceptance, ShapeConfirmation:
		return d.associate(item, c)
	case ShapeCreation:
		return d.create(item, c)
	default:
		d.cfg.Logger.Debug("ignoring item", "item_id", item.ID, "author", item.Author)
		return Ignored, nil
	}
}

func (d *Digester) associate(item inbox.Item, c Classification) (Outcome, error) {
	e := Entry{
		ItemID:       item.ID,
		Acceptance:   c.Acceptance,
		Confirmation: c.Confirmation,
		ReceivedAt:   item.CreatedAt,
	}

	if t, ok := d.tips.FindByReference(c.Reference); ok {
		if _, err := d.tips.Modify(t.ID, e.Apply); err != nil {
			return Ignored, err
		}
		d.markReadable(item.ID)
		d.cfg.Logger.Debug("applied association",
			"event", "associated",
			"item_id", item.ID,
			"tip_id", t.ID,
			"shape", c.Shape.String(),
		)
		return Associated, nil
	}

	if d.buffer.Add(c.Reference, e) {
		d.cfg.Logger.Debug("buffered association",
			"event", "deferred",
			"item_id", item.ID,
			"reference", c.Reference,
			"shape", c.Shape.String(),
		)
	}
	return Deferred, nil
}

func (d *Digester) create(item inbox.Item, c Classification) (Outcome, error) {
	if _, ok := d.tips.Get(item.ID); ok {
		d.markReadable(item.ID)
		return Associated, nil
	}

	address := c.Address
	if canonical, err := d.cfg.Params.Canonical(address); err == nil {
		address = canonical
	} else {
		d.cfg.Logger.Warn("unparseable recipient address",
			"item_id", item.ID,
			"address", c.Address,
			"error", err,
		)
	}

	t := tip.New(tip.Identifiers{
		NotificationID:   item.ID,
		TippingCommentID: c.TippingCommentID,
	}, c.Username, address, item.CreatedAt)

	if d.cfg.Params.IsRelay(address) {
		t.Acceptance = tip.AcceptanceNotYetLinked
		t.Confirmation = tip.ConfirmationStealth
	} else {
		t.Acceptance = tip.AcceptanceLinked
	}

	if err := d.tips.Add(t); err != nil {
		return Ignored, fmt.Errorf("add tip %s: %w", item.ID, err)
	}
	d.cfg.Logger.Info("tip created",
		"event", "tip_created",
		"tip_id", t.ID,
		"reference", t.Reference,
		"username", t.Username,
	)

	for _, e := range d.buffer.Drain(t.Reference) {
		if _, err := d.tips.Modify(t.ID, e.Apply); err != nil {
			return CreatedTip, err
		}
		d.markReadable(e.ItemID)
		d.cfg.Logger.Debug("drained buffered association",
			"event", "drained",
			"item_id", e.ItemID,
			"tip_id", t.ID,
		)
	}

	d.pending = append(d.pending, pendingAmount{tipID: t.ID, commentID: c.TippingCommentID})
	d.markReadable(item.ID)
	return CreatedTip, nil
}

// Pending returns the number of tips still waiting for an amount.
func (d *Digester) Pending() int {
	return len(d.pending)
}

// Enrich resolves the amounts of pending tips. Tipping comments are fetched
// in one batch of at most BatchSize ids; ids the batch does not resolve stay
// pending for the next round.
func (d *Digester) Enrich(ctx context.Context) error {
	if len(d.pending) == 0 {
		return nil
	}

	batch := make(map[string]bool)
	var ids []string
	for _, p := range d.pending {
		if p.commentID == "" || batch[p.commentID] {
			continue
		}
		if len(ids) == d.cfg.BatchSize {
			break
		}
		batch[p.commentID] = true
		ids = append(ids, p.commentID)
	}

	comments := make(map[string]inbox.Comment)
	if len(ids) > 0 {
		fetched, err := d.inbox.FetchComments(ctx, ids)
		if err != nil {
			return fmt.Errorf("fetch tipping comments: %w", err)
		}
		for _, c := range fetched {
			comments[StripKind(c.ID)] = c
		}
	}

	var rest []pendingAmount
	for _, p := range d.pending {
		var comment *inbox.Comment
		if p.commentID != "" {
			if !batch[p.commentID] {
				rest = append(rest, p)
				continue
			}
			c, ok := comments[p.commentID]
			if !ok {
				d.cfg.Logger.Debug("tipping comment not returned, will retry",
					"tip_id", p.tipID,
					"comment_id", p.commentID,
				)
				rest = append(rest, p)
				continue
			}
			comment = &c
		}

		if err := d.resolve(ctx, p.tipID, comment); err != nil {
			if errors.Is(err, tip.ErrNotFound) {
				continue
			}
			d.cfg.Logger.Warn("amount resolution failed, will retry",
				"tip_id", p.tipID,
				"error", err,
			)
			rest = append(rest, p)
		}
	}
	d.pending = rest
	return ctx.Err()
}

func (d *Digester) resolve(ctx context.Context, tipID string, comment *inbox.Comment) error {
	t, ok := d.tips.Get(tipID)
	if !ok {
		return tip.ErrNotFound
	}

	var instr amount.Instruction
	if comment != nil {
		instr, _ = d.parser.Parse(comment.Body)
	}

	linked := t.Acceptance.Linked()
	res, err := d.cfg.Resolver.Resolve(ctx, instr.Quantity, instr.Unit, d.cfg.Defaults(t.Username, linked), linked)
	if err != nil {
		return err
	}

	now := d.cfg.Now()
	_, err = d.tips.Modify(tipID, func(t *tip.Tip) bool {
		changed := t.SetAmount(res, instr.Text, now)
		if comment != nil {
			changed = setTippee(t, comment) || changed
		}
		return changed
	})
	if err != nil {
		return err
	}

	d.cfg.Logger.Info("amount resolved",
		"event", "amount_resolved",
		"tip_id", tipID,
		"amount", res.Amount.String(),
		"unit", res.Unit,
		"default_used", res.UsedDefault,
	)
	return nil
}

// setTippee records what the tipping comment replied to.
func setTippee(t *tip.Tip, c *inbox.Comment) bool {
	changed := false
	if strings.HasPrefix(c.ParentID, "t1_") && t.TippeeCommentID == "" {
		t.TippeeCommentID = StripKind(c.ParentID)
		changed = true
	}
	if c.LinkID != "" && t.TippeePostID == "" {
		t.TippeePostID = StripKind(c.LinkID)
		changed = true
	}
	return changed
}

func (d *Digester) markReadable(id string) {
	if d.cfg.MarkRead {
		d.readable = append(d.readable, id)
	}
}

// FlushRead marks the items digested since the last flush as read in the
// inbox and on their tips. Buffered items stay unread so that a restart
// replays them.
func (d *Digester) FlushRead(ctx context.Context) error {
	if len(d.readable) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(d.readable))
	ids := make([]string, 0, len(d.readable))
	for _, id := range d.readable {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	if err := d.inbox.MarkRead(ctx, ids); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	d.readable = nil

	for _, id := range ids {
		_, _ = d.tips.Modify(id, func(t *tip.Tip) bool { return t.MarkRead() })
	}
	return nil
}

// Requeue schedules amount resolution for a restored tip that never got
// one.
func (d *Digester) Requeue(t tip.Tip) {
	if t.Payment.State != tip.PaymentUnset {
		return
	}
	d.pending = append(d.pending, pendingAmount{tipID: t.ID, commentID: t.TippingCommentID})
}
