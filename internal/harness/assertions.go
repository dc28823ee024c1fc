package harness

import (
	"github.com/shopspring/decimal"
)

// evaluate checks the final state against expect. Failures are collected,
// not returned, so one run reports every mismatch.
func (h *Harness) evaluate(expect Expect) {
	for _, e := range expect.Tips {
		h.checkTip(e)
	}

	if expect.Broadcasts != nil {
		if got := len(h.result.Broadcasts); got != *expect.Broadcasts {
			h.result.Fail("broadcasts: expected %d, got %d", *expect.Broadcasts, got)
		}
	}

	stats := h.engine.Stats()
	if expect.Buffered != nil && stats.Buffered != *expect.Buffered {
		h.result.Fail("buffered: expected %d, got %d", *expect.Buffered, stats.Buffered)
	}
	if expect.Tipless != nil && stats.Tipless != *expect.Tipless {
		h.result.Fail("tipless: expected %d, got %d", *expect.Tipless, stats.Tipless)
	}

	for _, id := range expect.Unread {
		if !h.inbox.IsUnread(id) {
			h.result.Fail("item %s: expected unread", id)
		}
	}
}

func (h *Harness) checkTip(e TipExpectation) {
	t, ok := h.engine.Get(e.ID)
	if e.Absent {
		if ok {
			h.result.Fail("tip %s: expected absent", e.ID)
		}
		return
	}
	if !ok {
		h.result.Fail("tip %s: not found", e.ID)
		return
	}

	v := h.view(t)
	str := func(field string, want *string, got string) {
		if want != nil && *want != got {
			h.result.Fail("tip %s %s: expected %q, got %q", e.ID, field, *want, got)
		}
	}
	str("payment", e.Payment, v.Payment)
	str("state", e.State, string(t.Payment.State))
	str("acceptance", e.Acceptance, v.Acceptance)
	str("confirmation", e.Confirmation, v.Confirmation)
	str("read", e.Read, v.Read)

	h.checkDecimal(e.ID, "amount", e.Amount, t.Amount)
	h.checkDecimal(e.ID, "received", e.Received, t.AmountReceived())

	if e.DefaultUsed != nil && *e.DefaultUsed != t.DefaultAmountUsed {
		h.result.Fail("tip %s default_used: expected %t, got %t", e.ID, *e.DefaultUsed, t.DefaultAmountUsed)
	}

	if e.RealRecipient != nil {
		_, want, err := h.resolve(*e.RealRecipient)
		if err != nil {
			h.result.Fail("tip %s real_recipient: %v", e.ID, err)
			return
		}
		str("real_recipient", &want, v.RealRecipient)
	}
}

func (h *Harness) checkDecimal(id, field string, want *string, got decimal.Decimal) {
	if want == nil {
		return
	}
	w, err := decimal.NewFromString(*want)
	if err != nil {
		h.result.Fail("tip %s %s: bad expectation %q", id, field, *want)
		return
	}
	if !w.Equal(got) {
		h.result.Fail("tip %s %s: expected %s, got %s", id, field, w, got)
	}
}
