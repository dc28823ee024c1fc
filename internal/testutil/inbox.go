package testutil

import (
	"context"
	"sync"

	"github.com/roach88/tipsync/internal/inbox"
)

// FakeInbox is an in-memory inbox.Inbox.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeInbox struct {
	mu       sync.Mutex
	order    []string
	items    map[string]inbox.Item
	unread   map[string]bool
	comments map[string]inbox.Comment

	listErrs   []error
	listCalls  []string
	fetchCalls [][]string
}

// NewFakeInbox creates an empty inbox.
func NewFakeInbox() *FakeInbox {
	return &FakeInbox{
		items:    make(map[string]inbox.Item),
		unread:   make(map[string]bool),
		comments: make(map[string]inbox.Comment),
	}
}

// Deliver adds item as unread. Delivering a known id again marks it unread.
func (f *FakeInbox) Deliver(item inbox.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[item.ID]; !ok {
		f.order = append(f.order, item.ID)
	}
	f.items[item.ID] = item
	f.unread[item.ID] = true
}

// AddComment makes a comment fetchable.
func (f *FakeInbox) AddComment(c inbox.Comment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[c.ID] = c
}

// FailNextList makes the next ListUnread calls return errs, one per call.
func (f *FakeInbox) FailNextList(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErrs = append(f.listErrs, errs...)
}

// IsUnread reports whether id is currently unread.
func (f *FakeInbox) IsUnread(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread[id]
}

// ListCalls returns the cursor passed to each ListUnread call.
func (f *FakeInbox) ListCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.listCalls...)
}

// FetchCalls returns the id batches passed to FetchComments.
func (f *FakeInbox) FetchCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.fetchCalls...)
}

// ListUnread implements inbox.Inbox.
func (f *FakeInbox) ListUnread(ctx context.Context, after string, limit int) ([]inbox.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.listErrs) > 0 {
		err := f.listErrs[0]
		f.listErrs = f.listErrs[1:]
		return nil, err
	}

	f.listCalls = append(f.listCalls, after)

	order := f.order
	if after != "" {
		for i, id := range order {
			if id == after {
				order = order[i+1:]
				break
			}
		}
	}

	var out []inbox.Item
	for _, id := range order {
		if limit > 0 && len(out) == limit {
			break
		}
		if f.unread[id] {
			out = append(out, f.items[id])
		}
	}
	return out, nil
}

// FetchComments implements inbox.Inbox.
func (f *FakeInbox) FetchComments(ctx context.Context, ids []string) ([]inbox.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls = append(f.fetchCalls, append([]string(nil), ids...))

	var out []inbox.Comment
	for _, id := range ids {
		if c, ok := f.comments[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// MarkRead implements inbox.Inbox.
func (f *FakeInbox) MarkRead(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.unread, id)
	}
	return nil
}

// MarkUnread implements inbox.Inbox.
func (f *FakeInbox) MarkUnread(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if _, ok := f.items[id]; ok {
			f.unread[id] = true
		}
	}
	return nil
}
