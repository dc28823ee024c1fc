package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tipsync/internal/amount"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Recipient string
	Linked    bool
}

// ResolveResult is the JSON payload of the resolve command.
type ResolveResult struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Quantity    string `json:"quantity"`
	Unit        string `json:"unit,omitempty"`
	PricedIn    string `json:"priced_in,omitempty"`
	DefaultUsed bool   `json:"default_used"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <quantity> [unit]",
		Short: "Resolve a tip amount",
		Long: `Resolve a tip amount the way the engine does, using the configured
unit table and fixed exchange rates.

A quantity the table cannot interpret falls back to the default amount of
the recipient.

Examples:
  tipsync resolve 500 bits
  tipsync resolve '$5'
  tipsync resolve a coffee --config tipsync.yaml
  tipsync resolve lots --recipient bob --format json
  tipsync resolve a welcome --linked`,
		Args:          usageArgs(cobra.RangeArgs(1, 2)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			unit := ""
			if len(args) == 2 {
				unit = args[1]
			}
			return runResolve(opts, args[0], unit, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Recipient, "recipient", "", "recipient whose default amount applies")
	cmd.Flags().BoolVar(&opts.Linked, "linked", false, "price for a recipient who already linked an address")

	return cmd
}

func runResolve(opts *ResolveOptions, quantity, unit string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	out := printer(opts.RootOptions, cfg, cmd)

	table, err := cfg.AmountTable()
	if err != nil {
		return Wrap(CodeConfig, "invalid unit table", err)
	}
	rates, err := cfg.RateSource()
	if err != nil {
		return Wrap(CodeConfig, "invalid rates", err)
	}
	out.Log.Debug("resolver ready", "units", len(table.Units), "rates", len(rates))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	resolver := amount.NewResolver(table, rates, time.Now)
	res, err := resolver.Resolve(ctx, quantity, unit, cfg.Defaults()(opts.Recipient, opts.Linked), opts.Linked)
	if err != nil {
		return out.Fail(Wrap(CodeResolve, "cannot resolve "+strconv.Quote(strings.TrimSpace(quantity+" "+unit)), err), nil)
	}

	result := ResolveResult{
		Amount:      res.Amount.String(),
		Currency:    table.BaseCurrency,
		Quantity:    res.Quantity.String(),
		Unit:        res.Unit,
		PricedIn:    res.Currency,
		DefaultUsed: res.UsedDefault,
	}
	return out.Result(result, func(w io.Writer) {
		line := fmt.Sprintf("%s %s", result.Amount, result.Currency)
		if result.DefaultUsed {
			line += fmt.Sprintf(" (default %s %s)", result.Quantity, result.PricedIn)
		} else if result.Unit != "" {
			line += fmt.Sprintf(" (%s %s)", result.Quantity, result.Unit)
		}
		fmt.Fprintln(w, line)
	})
}
