package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/tipsync/internal/amount"
	"github.com/roach88/tipsync/internal/tip"
)

var testTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// createTestStore opens a fresh store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord builds a record for a tip created offset after testTime.
func createTestRecord(id string, offset time.Duration) tip.Record {
	tp := tip.New(tip.Identifiers{
		NotificationID:   id,
		TippingCommentID: "c-" + id,
	}, "alice", "bitcoincash:qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a", testTime.Add(offset))
	tp.SetAmount(amount.Result{
		Amount:   decimal.RequireFromString("0.0005"),
		Quantity: decimal.RequireFromString("500"),
		Unit:     "bit",
		Currency: amount.BaseCurrency,
	}, "500 bit", testTime)
	return tp.ToRecord()
}
