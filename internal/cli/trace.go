package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/roach88/tipsync/internal/harness"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	MetricsPath string
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <scenario.yaml>",
		Short: "Show what a scenario does, step by step",
		Long: `Run one scenario and print its step trace, the final tip table and the
payments autopay broadcast. With --format json the golden snapshot is
printed instead.

Examples:
  tipsync trace ./testdata/scenarios/relay_forward.yaml
  tipsync trace ./testdata/scenarios/relay_forward.yaml -v
  tipsync trace ./testdata/scenarios/autopay_end_to_end.yaml --metrics metrics.prom`,
		Args:          usageArgs(cobra.ExactArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MetricsPath, "metrics", "", "write the engine metrics to this file in Prometheus text format")

	return cmd
}

func runTrace(opts *TraceOptions, path string, cmd *cobra.Command) error {
	out := printer(opts.RootOptions, nil, cmd)

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return Wrap(CodeScenario, "failed to load scenario", err)
	}

	var runOpts []harness.Option
	if opts.Verbose {
		runOpts = append(runOpts, harness.WithLogger(out.Log))
	}
	reg := prometheus.NewRegistry()
	if opts.MetricsPath != "" {
		runOpts = append(runOpts, harness.WithRegisterer(reg))
	}
	result, err := harness.Run(scenario, runOpts...)
	if err != nil {
		return Wrap(CodeScenario, "scenario failed", err)
	}
	if opts.MetricsPath != "" {
		if err := writeMetrics(reg, opts.MetricsPath); err != nil {
			return Wrap(CodeUsage, "failed to write metrics", err)
		}
	}

	snapshot, err := harness.MarshalSnapshot(scenario.Name, result)
	if err != nil {
		return err
	}
	if err := out.Result(json.RawMessage(snapshot), func(w io.Writer) {
		printTrace(w, scenario, result)
	}); err != nil {
		return err
	}

	if !result.Pass {
		return Failf(CodeExpect, "%d expectation(s) failed", len(result.Errors))
	}
	return nil
}

// writeMetrics dumps everything gathered from g to path.
func writeMetrics(g prometheus.Gatherer, path string) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func printTrace(w io.Writer, scenario *harness.Scenario, result *harness.Result) {
	fmt.Fprintf(w, "Scenario: %s\n", scenario.Name)
	if scenario.Description != "" {
		fmt.Fprintf(w, "  %s\n", scenario.Description)
	}

	fmt.Fprintln(w, "\nTrace:")
	for _, ev := range result.Trace {
		fmt.Fprintf(w, "  [%d] %-12s %s\n", ev.Step, ev.Event, ev.Detail)
	}

	fmt.Fprintln(w, "\nTips:")
	if len(result.Tips) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, t := range result.Tips {
		fmt.Fprintf(w, "  %s u/%s -> %s: %s", t.ID, t.Username, t.Recipient, dash(t.Payment))
		if t.Amount != "" {
			fmt.Fprintf(w, ", amount %s", t.Amount)
		}
		if t.Received != "" {
			fmt.Fprintf(w, ", received %s", t.Received)
		}
		fmt.Fprintf(w, ", %s", t.Acceptance)
		if t.Confirmation != "" {
			fmt.Fprintf(w, "/%s", t.Confirmation)
		}
		fmt.Fprintln(w)
	}

	if len(result.Broadcasts) > 0 {
		fmt.Fprintln(w, "\nBroadcasts:")
		for _, b := range result.Broadcasts {
			for _, o := range b.Outputs {
				fmt.Fprintf(w, "  %s %s -> %s\n", b.TxID, o.Amount, o.To)
			}
		}
	}

	if !result.Pass {
		fmt.Fprintln(w, "\nUnmet expectations:")
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
}
