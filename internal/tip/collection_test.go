package tip

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tipsync/internal/amount"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) listener() ListenerFuncs {
	rec := func(kind string) func(Tip) {
		return func(t Tip) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, kind+":"+t.ID)
		}
	}
	return ListenerFuncs{Added: rec("added"), Updated: rec("updated"), Removed: rec("removed")}
}

func TestCollection_AddDuplicate(t *testing.T) {
	c := NewCollection(permissive())

	require.NoError(t, c.Add(newTestTip("m1")))
	err := c.Add(newTestTip("m1"))
	require.ErrorIs(t, err, ErrDuplicateTip)
	assert.Equal(t, 1, c.Len())
}

func TestCollection_GetReturnsSnapshot(t *testing.T) {
	c := NewCollection(permissive())
	require.NoError(t, c.Add(newTestTip("m1")))

	snap, ok := c.Get("m1")
	require.True(t, ok)
	snap.Username = "mallory"
	snap.Payments["tx"] = dec("1")

	again, _ := c.Get("m1")
	assert.Equal(t, "alice", again.Username)
	assert.Empty(t, again.Payments)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCollection_FindByReference(t *testing.T) {
	c := NewCollection(permissive())
	require.NoError(t, c.Add(newTestTip("m1")))

	found, ok := c.FindByReference("cm1")
	require.True(t, ok)
	assert.Equal(t, "m1", found.ID)

	_, ok = c.FindByReference("nope")
	assert.False(t, ok)

	require.NoError(t, c.Remove("m1"))
	_, ok = c.FindByReference("cm1")
	assert.False(t, ok)
}

func TestCollection_ModifyNotifiesOnChange(t *testing.T) {
	c := NewCollection(permissive())
	rec := &recorder{}
	c.Subscribe(rec.listener())

	require.NoError(t, c.Add(newTestTip("m1")))

	changed, err := c.Modify("m1", func(tp *Tip) bool { return tp.MarkRead() })
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = c.Modify("m1", func(tp *Tip) bool { return tp.MarkRead() })
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = c.Modify("missing", func(*Tip) bool { return true })
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Remove("m1"))
	require.ErrorIs(t, c.Remove("m1"), ErrNotFound)

	assert.Equal(t, []string{"added:m1", "updated:m1", "removed:m1"}, rec.events)
}

func TestCollection_ModifyReevaluates(t *testing.T) {
	p := permissive()
	p.UseLimit = true
	p.Limit = dec("0.001")
	c := NewCollection(p)
	require.NoError(t, c.Add(newTestTip("m1")))

	_, err := c.Modify("m1", func(tp *Tip) bool {
		tp.SetAmount(amount.Result{Amount: dec("0.01")}, "", t0)
		return tp.AdvanceGrace(t0.Add(time.Hour), time.Second)
	})
	require.NoError(t, err)

	got, _ := c.Get("m1")
	assert.Equal(t, Ineligible(ReasonAmountLimited), got.Payment)
}

func TestCollection_SetPolicy(t *testing.T) {
	c := NewCollection(permissive())
	for _, id := range []string{"m1", "m2"} {
		tp := newTestTip(id)
		tp.CreatedAt = t0.Add(time.Duration(len(id)) * time.Second)
		require.NoError(t, c.Add(tp))
		_, err := c.Modify(id, func(tp *Tip) bool {
			tp.SetAmount(amount.Result{Amount: dec("0.0005")}, "", t0)
			return tp.AdvanceGrace(t0.Add(time.Hour), time.Second)
		})
		require.NoError(t, err)
	}
	_, err := c.Modify("m2", func(tp *Tip) bool {
		tp.Payment = AutopayError("boom")
		return true
	})
	require.NoError(t, err)

	off := permissive()
	off.AutopayEnabled = false
	assert.Equal(t, 2, c.SetPolicy(off))
	for _, tp := range c.Snapshot() {
		assert.Equal(t, Ineligible(ReasonAutopayDisabled), tp.Payment, tp.ID)
	}

	assert.Equal(t, 2, c.SetPolicy(permissive()))
	for _, tp := range c.Snapshot() {
		assert.Equal(t, ReadyToPay(), tp.Payment, tp.ID)
	}
}

func TestCollection_SnapshotOrder(t *testing.T) {
	c := NewCollection(permissive())

	late := newTestTip("a")
	late.CreatedAt = t0.Add(time.Minute)
	early := newTestTip("b")
	tie := newTestTip("c")

	require.NoError(t, c.Add(late))
	require.NoError(t, c.Add(tie))
	require.NoError(t, c.Add(early))

	assert.Equal(t, []string{"b", "c", "a"}, c.IDs())
}

func TestCollection_ConcurrentReads(t *testing.T) {
	c := NewCollection(permissive())
	require.NoError(t, c.Add(newTestTip("m1")))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Snapshot()
				c.Get("m1")
			}
		}()
	}
	for j := 0; j < 100; j++ {
		_, err := c.Modify("m1", func(tp *Tip) bool {
			return tp.RegisterPayment(string(rune('a'+j%26))+"tx", dec("0.00000001"))
		})
		require.NoError(t, err)
	}
	wg.Wait()

	got, _ := c.Get("m1")
	assert.Len(t, got.Payments, 26)
}
