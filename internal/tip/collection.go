package tip

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Listener observes collection changes. Callbacks receive snapshots and run
// on the goroutine that made the change, after the collection lock is
// released; they may call back into the collection.
type Listener interface {
	TipAdded(t Tip)
	TipUpdated(t Tip)
	TipRemoved(t Tip)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Added   func(Tip)
	Updated func(Tip)
	Removed func(Tip)
}

func (f ListenerFuncs) TipAdded(t Tip) {
	if f.Added != nil {
		f.Added(t)
	}
}

func (f ListenerFuncs) TipUpdated(t Tip) {
	if f.Updated != nil {
		f.Updated(t)
	}
}

func (f ListenerFuncs) TipRemoved(t Tip) {
	if f.Removed != nil {
		f.Removed(t)
	}
}

// Collection owns every Tip, keyed by id with a secondary index by
// reference.
//
// Thread-safety: all methods are safe for concurrent use. Mutations are
// expected to come from a single reconciliation goroutine; readers may take
// snapshots at any time.
type Collection struct {
	mu        sync.RWMutex
	tips      map[string]*Tip
	byRef     map[string]string
	policy    Policy
	listeners []Listener
}

// NewCollection creates an empty collection evaluating eligibility under
// policy.
func NewCollection(policy Policy) *Collection {
	return &Collection{
		tips:   make(map[string]*Tip),
		byRef:  make(map[string]string),
		policy: policy,
	}
}

// Subscribe registers a listener. Listeners are called in registration
// order.
func (c *Collection) Subscribe(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *Collection) snapshotListeners() []Listener {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Listener(nil), c.listeners...)
}

// Add takes ownership of t. Adding an id that already exists returns
// ErrDuplicateTip. The first tip registered for a reference owns it.
func (c *Collection) Add(t *Tip) error {
	c.mu.Lock()
	if _, exists := c.tips[t.ID]; exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateTip, t.ID)
	}
	if t.Payments == nil {
		t.Payments = make(map[string]decimal.Decimal)
	}
	t.Reevaluate(c.policy)
	c.tips[t.ID] = t
	if _, taken := c.byRef[t.Reference]; !taken && t.Reference != "" {
		c.byRef[t.Reference] = t.ID
	}
	snap := t.Clone()
	c.mu.Unlock()

	for _, l := range c.snapshotListeners() {
		l.TipAdded(snap)
	}
	return nil
}

// Get returns a snapshot of the tip with the given id.
func (c *Collection) Get(id string) (Tip, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tips[id]
	if !ok {
		return Tip{}, false
	}
	return t.Clone(), true
}

// FindByReference returns a snapshot of the tip owning reference.
func (c *Collection) FindByReference(reference string) (Tip, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byRef[reference]
	if !ok {
		return Tip{}, false
	}
	return c.tips[id].Clone(), true
}

// Modify runs fn on the tip with the given id under the collection lock.
// fn reports whether it changed anything; eligibility is then re-derived and
// listeners are told about the update. Modify reports whether the tip
// changed.
func (c *Collection) Modify(id string, fn func(*Tip) bool) (bool, error) {
	c.mu.Lock()
	t, ok := c.tips[id]
	if !ok {
		c.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	changed := fn(t)
	if t.Reevaluate(c.policy) {
		changed = true
	}
	snap := t.Clone()
	c.mu.Unlock()

	if changed {
		for _, l := range c.snapshotListeners() {
			l.TipUpdated(snap)
		}
	}
	return changed, nil
}

// ModifyAll runs fn on every tip, in creation order, and returns the number
// of tips that changed.
func (c *Collection) ModifyAll(fn func(*Tip) bool) int {
	n := 0
	for _, id := range c.IDs() {
		changed, err := c.Modify(id, fn)
		if err == nil && changed {
			n++
		}
	}
	return n
}

// Remove deletes a tip. Its reference becomes free for a later tip.
func (c *Collection) Remove(id string) error {
	c.mu.Lock()
	t, ok := c.tips[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(c.tips, id)
	if c.byRef[t.Reference] == id {
		delete(c.byRef, t.Reference)
	}
	snap := t.Clone()
	c.mu.Unlock()

	for _, l := range c.snapshotListeners() {
		l.TipRemoved(snap)
	}
	return nil
}

// Policy returns the current eligibility policy.
func (c *Collection) Policy() Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.policy
}

// SetPolicy replaces the policy, clears failed-broadcast markers and
// re-evaluates every tip. It returns the number of tips whose status
// changed.
func (c *Collection) SetPolicy(p Policy) int {
	c.mu.Lock()
	c.policy = p
	c.mu.Unlock()

	return c.ModifyAll(func(t *Tip) bool {
		return t.ClearSticky()
	})
}

// Len returns the number of tips.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tips)
}

// IDs returns every tip id in creation order.
func (c *Collection) IDs() []string {
	snap := c.Snapshot()
	ids := make([]string, len(snap))
	for i, t := range snap {
		ids[i] = t.ID
	}
	return ids
}

// Snapshot copies every tip, ordered by creation time then id.
func (c *Collection) Snapshot() []Tip {
	c.mu.RLock()
	out := make([]Tip, 0, len(c.tips))
	for _, t := range c.tips {
		out = append(out, t.Clone())
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
