package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// UnitView is one unit table entry.
type UnitView struct {
	Names       []string `json:"names"`
	Value       string   `json:"value"`
	ValueLinked string   `json:"value_linked,omitempty"`
	Currency    string   `json:"currency"`
}

// UnitsResult is the JSON payload of the units command.
type UnitsResult struct {
	Base    string            `json:"base"`
	Units   []UnitView        `json:"units"`
	Aliases map[string]string `json:"aliases"`
	Symbols map[string]string `json:"symbols"`
}

// NewUnitsCommand creates the units command.
func NewUnitsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "units",
		Short: "List the unit table",
		Long: `List the units, quantity aliases and prefix symbols tip amounts may use.

Units from the config file are listed first and shadow built-in units of
the same name.`,
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnits(rootOpts, cmd)
		},
	}
}

func runUnits(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	table, err := cfg.AmountTable()
	if err != nil {
		return Wrap(CodeConfig, "invalid unit table", err)
	}

	result := UnitsResult{
		Base:    table.BaseCurrency,
		Units:   make([]UnitView, len(table.Units)),
		Aliases: make(map[string]string, len(table.QuantityAliases)),
		Symbols: table.PrefixSymbols,
	}
	for i, u := range table.Units {
		result.Units[i] = UnitView{Names: u.Names, Value: u.Value.String(), Currency: u.Currency}
		if !u.ValueLinked.IsZero() {
			result.Units[i].ValueLinked = u.ValueLinked.String()
		}
	}
	for alias, q := range table.QuantityAliases {
		result.Aliases[alias] = q.String()
	}

	return printer(opts, cfg, cmd).Result(result, func(w io.Writer) {
		fmt.Fprintf(w, "Units (base %s):\n", result.Base)
		for _, u := range result.Units {
			value := u.Value + " " + u.Currency
			if u.ValueLinked != "" {
				value += " (linked " + u.ValueLinked + ")"
			}
			fmt.Fprintf(w, "  %-40s %s\n", strings.Join(u.Names, ", "), value)
		}
		fmt.Fprintln(w, "Quantity aliases:")
		for _, alias := range sortedKeys(result.Aliases) {
			fmt.Fprintf(w, "  %s = %s\n", alias, result.Aliases[alias])
		}
		fmt.Fprintln(w, "Prefix symbols:")
		for _, sym := range sortedKeys(result.Symbols) {
			fmt.Fprintf(w, "  %s = %s\n", sym, result.Symbols[sym])
		}
	})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
