package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-kratos/caseflow"
	"github.com/go-kratos/caseflow/complaint"
	"github.com/go-kratos/caseflow/graph"
	"github.com/go-kratos/caseflow/store"
)

var runCmd = &cobra.Command{
	Use:   "run <complaint...>",
	Short: "Run one complaint through the workflow",
	Long: `Run one complaint through the workflow and print the rendered path.

Exit status: 0 closed, 2 rejected or escalated, 3 blocked, 1 error.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runComplaint,
}

func init() {
	runCmd.Flags().Bool("json", false, "Print the record, trace and final state as JSON")
	rootCmd.AddCommand(runCmd)
}

// result is the JSON form of a finished case.
type result struct {
	Outcome complaint.Outcome  `json:"outcome"`
	Record  *caseflow.Record   `json:"record,omitempty"`
	Trace   []graph.StepRecord `json:"trace"`
	Final   graph.State        `json:"final"`
	Error   string             `json:"error,omitempty"`
	History []store.Snapshot   `json:"checkpoints,omitempty"`
}

func newResult(record *caseflow.Record, c *graph.Case, err error) result {
	r := result{Outcome: complaint.OutcomeOf(c), Record: record}
	if c != nil {
		r.Trace = c.Trace
		r.Final = c.Final
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

func runComplaint(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.shutdown(ctx)

	record, c, err := complaint.Process(ctx, a.stores.cases, a.executor, strings.Join(args, " "))
	if c == nil {
		return err
	}
	complaint.LogTrace(a.logger, c)
	out := cmd.OutOrStdout()
	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		r := newResult(record, c, err)
		if cp, ok := a.stores.checkpoints.(*store.Checkpoints); ok {
			r.History = cp.History(c.ID)
		}
		if err := writeJSON(out, r); err != nil {
			return err
		}
	} else {
		printCase(out, record, c)
	}
	if code := complaint.OutcomeOf(c).ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

func printCase(w io.Writer, record *caseflow.Record, c *graph.Case) {
	fmt.Fprintf(w, "Case %s\n", c.ID)
	fmt.Fprintln(w, complaint.RenderTrace(c))
	if record != nil && record.Resolution != "" {
		fmt.Fprintf(w, "\nResolution:\n%s\n", record.Resolution)
	}
	if record != nil && record.ClosureLog != "" {
		fmt.Fprintf(w, "\n%s\n", record.ClosureLog)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
