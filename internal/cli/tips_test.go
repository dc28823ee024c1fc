package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tipsync/internal/amount"
	"github.com/roach88/tipsync/internal/store"
	"github.com/roach88/tipsync/internal/tip"
)

var tipsTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func tipRecord(id, user string, offset time.Duration, paid string) tip.Record {
	tp := tip.New(tip.Identifiers{
		NotificationID:   id,
		TippingCommentID: "c-" + id,
	}, user, "bitcoincash:qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a", tipsTime.Add(offset))
	tp.SetAmount(amount.Result{
		Amount:   decimal.RequireFromString("0.0005"),
		Quantity: decimal.RequireFromString("500"),
		Unit:     "bit",
		Currency: amount.BaseCurrency,
	}, "500 bit", tipsTime)
	rec := tp.ToRecord()
	if paid != "" {
		rec.Payments = map[string]decimal.Decimal{"tx-" + id: decimal.RequireFromString(paid)}
		rec.PaymentStatus = tip.PaymentRecord{State: tip.PaymentPaid, Count: 1}
	}
	return rec
}

func writeStore(t *testing.T, doc *store.Document) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tips.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	if doc != nil {
		require.NoError(t, st.Save(context.Background(), *doc))
	}
	require.NoError(t, st.Close())
	return path
}

func TestTipsCommand_MissingDatabase(t *testing.T) {
	_, err := executeRoot(t, "tips", "--db", filepath.Join(t.TempDir(), "nope.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}

func TestTipsCommand_EmptyStore(t *testing.T) {
	path := writeStore(t, nil)

	out, err := executeRoot(t, "tips", "--db", path)
	require.NoError(t, err)
	assert.Equal(t, "No tips saved.\n", out)
}

func TestTipsCommand_Text(t *testing.T) {
	doc := store.NewDocument(7, []tip.Record{
		tipRecord("m2", "bob", time.Minute, ""),
		tipRecord("m1", "alice", 0, "0.0005"),
	})
	path := writeStore(t, &doc)

	out, err := executeRoot(t, "tips", "--db", path)
	require.NoError(t, err)

	assert.Contains(t, out, "ACCEPTANCE")
	assert.Contains(t, out, "u/alice")
	assert.Contains(t, out, "paid (1)")
	assert.Contains(t, out, "2 tip(s), cycle 7")
	// oldest first
	assert.Less(t, strings.Index(out, "u/alice"), strings.Index(out, "u/bob"))
}

func TestTipsCommand_JSON(t *testing.T) {
	doc := store.NewDocument(3, []tip.Record{tipRecord("m1", "alice", 0, "")})
	path := writeStore(t, &doc)

	out, err := executeRoot(t, "--format", "json", "tips", "--db", path)
	require.NoError(t, err)

	var resp Envelope[TipsResult]
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, store.Version, resp.Data.Version)
	assert.Equal(t, int64(3), resp.Data.Cycle)
	require.Len(t, resp.Data.Tips, 1)
	assert.Equal(t, "m1", resp.Data.Tips[0].ID)
	assert.True(t, decimal.RequireFromString("0.0005").Equal(resp.Data.Tips[0].Amount))
}

func TestTipsCommand_VersionMismatch(t *testing.T) {
	doc := store.NewDocument(1, []tip.Record{tipRecord("m1", "alice", 0, "")})
	doc.Version = "tipsync/0"
	path := writeStore(t, &doc)

	out, err := executeRoot(t, "tips", "--db", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E_VERSION]")
	assert.Contains(t, out, `"tipsync/0"`)
}

func TestTipsCommand_VersionMismatchJSON(t *testing.T) {
	doc := store.NewDocument(1, []tip.Record{
		tipRecord("m1", "alice", 0, ""),
		tipRecord("m2", "bob", time.Minute, ""),
	})
	doc.Version = "tipsync/0"
	path := writeStore(t, &doc)

	out, err := executeRoot(t, "--format", "json", "tips", "--db", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp Envelope[TipsResult]
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeVersion, resp.Error.Code)
	assert.Equal(t, map[string]any{"db": path, "stale_tips": float64(2)}, resp.Error.Details)
}

func TestTipsCommand_DefaultsToConfiguredPath(t *testing.T) {
	path := writeStore(t, nil)
	cfg := writeConfig(t, "db_path: "+path+"\n")

	out, err := executeRoot(t, "--config", cfg, "tips")
	require.NoError(t, err)
	assert.Equal(t, "No tips saved.\n", out)
}

func TestDash(t *testing.T) {
	assert.Equal(t, "-", dash(""))
	assert.Equal(t, "stealth", dash("stealth"))
}
