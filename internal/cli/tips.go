package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tipsync/internal/store"
	"github.com/roach88/tipsync/internal/tip"
)

// TipsOptions holds flags for the tips command.
type TipsOptions struct {
	*RootOptions
	Database string
}

// TipsResult is the JSON payload of the tips command.
type TipsResult struct {
	Version string       `json:"version"`
	Cycle   int64        `json:"cycle"`
	Tips    []tip.Record `json:"tips"`
}

// NewTipsCommand creates the tips command.
func NewTipsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TipsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tips",
		Short: "List saved tips",
		Long: `List the tips saved in a tip store, oldest first.

Nothing is written to the store. A store saved by another version is
reported rather than re-imported.

Examples:
  tipsync tips --db ./tipsync.db
  tipsync tips --db ./tipsync.db --format json`,
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTips(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite tip store (default: db_path from config)")

	return cmd
}

func runTips(opts *TipsOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	path := opts.Database
	if path == "" {
		path = cfg.DBPath
	}
	out := printer(opts.RootOptions, cfg, cmd)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Failf(CodeStore, "database not found: %s", path)
	}

	st, err := store.Open(path)
	if err != nil {
		return Wrap(CodeStore, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			out.Log.Error("error closing database", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	doc, err := st.Load(ctx)
	switch {
	case errors.Is(err, store.ErrEmpty):
		doc = store.NewDocument(0, nil)
	case errors.Is(err, store.ErrVersionMismatch):
		ids, _ := st.IDs(ctx)
		return out.Fail(
			Failf(CodeVersion, "store version %q, want %q", doc.Version, store.Version),
			map[string]any{"db": path, "stale_tips": len(ids)},
		)
	case err != nil:
		return Wrap(CodeStore, "failed to load tips", err)
	}

	records := doc.Records()
	result := TipsResult{Version: doc.Version, Cycle: doc.Cycle, Tips: records}
	return out.Result(result, func(w io.Writer) {
		if len(records) == 0 {
			fmt.Fprintln(w, "No tips saved.")
			return
		}
		now := time.Now()
		fmt.Fprintf(w, "%-12s %-16s %-12s %-36s %-16s %-12s %s\n",
			"ID", "USER", "AMOUNT", "PAYMENT", "ACCEPTANCE", "CONFIRMED", "RECEIVED")
		for _, r := range records {
			t := tip.FromRecord(r, now)
			fmt.Fprintf(w, "%-12s %-16s %-12s %-36s %-16s %-12s %s\n",
				t.ID,
				"u/"+t.Username,
				t.Amount.String(),
				t.Payment.String(),
				string(t.Acceptance),
				dash(string(t.Confirmation)),
				t.AmountReceived().String(),
			)
		}
		fmt.Fprintf(w, "\n%d tip(s), cycle %d\n", len(records), doc.Cycle)
	})
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
