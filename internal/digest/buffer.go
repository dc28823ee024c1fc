package digest

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/tipsync/internal/tip"
)

// Entry is one association event waiting for its tip. Exactly one of
// Acceptance and Confirmation is set.
type Entry struct {
	ItemID       string
	Acceptance   tip.Acceptance
	Confirmation tip.Confirmation
	ReceivedAt   time.Time
}

// Apply applies the event to t and reports whether t changed.
func (e Entry) Apply(t *tip.Tip) bool {
	if e.Acceptance != "" {
		return t.ApplyAcceptance(e.Acceptance)
	}
	return t.ApplyConfirmation(e.Confirmation)
}

// Buffer holds association events whose reference names no known tip yet.
// Entries for one reference keep their arrival order. An item id is held at
// most once, so replayed notifications do not pile up.
type Buffer struct {
	mu      sync.Mutex
	entries map[string][]Entry
	items   map[string]string // item id -> reference
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{
		entries: make(map[string][]Entry),
		items:   make(map[string]string),
	}
}

// Add appends e under reference. It reports false if the item is already
// buffered.
func (b *Buffer) Add(reference string, e Entry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.items[e.ItemID]; ok {
		return false
	}
	b.items[e.ItemID] = reference
	b.entries[reference] = append(b.entries[reference], e)
	return true
}

// Drain removes and returns the entries for reference, oldest first.
func (b *Buffer) Drain(reference string) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.entries[reference]
	delete(b.entries, reference)
	for _, e := range out {
		delete(b.items, e.ItemID)
	}
	return out
}

// Holds reports whether an item is buffered.
func (b *Buffer) Holds(itemID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.items[itemID]
	return ok
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Discard empties the buffer, logging every entry it drops. It returns the
// number of entries discarded.
func (b *Buffer) Discard(logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}

	b.mu.Lock()
	refs := make([]string, 0, len(b.entries))
	for ref := range b.entries {
		refs = append(refs, ref)
	}
	entries := b.entries
	b.entries = make(map[string][]Entry)
	b.items = make(map[string]string)
	b.mu.Unlock()

	sort.Strings(refs)
	n := 0
	for _, ref := range refs {
		for _, e := range entries[ref] {
			logger.Warn("discarding unassociated event",
				"event", "buffer_discard",
				"reference", ref,
				"item_id", e.ItemID,
				"acceptance", string(e.Acceptance),
				"confirmation", string(e.Confirmation),
			)
			n++
		}
	}
	return n
}
