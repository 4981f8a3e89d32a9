package main

import (
	"fmt"
	"io"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/spf13/cobra"

	"github.com/go-kratos/caseflow"
	"github.com/go-kratos/caseflow/complaint"
	"github.com/go-kratos/caseflow/graph"
)

var recordSchemaCmd = &cobra.Command{
	Use:   "record-schema",
	Short: "Print the JSON schema of a stored case",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := jsonschema.For[caseflow.Record](nil)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), schema)
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the stages, transitions and fields of the workflow",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		executor, err := complaint.NewWorkflow(&caseflow.HandleFunc{})
		if err != nil {
			return err
		}
		printGraph(cmd.OutOrStdout(), executor)
		return nil
	},
}

func printGraph(w io.Writer, executor *graph.Executor) {
	fmt.Fprintf(w, "entry:  %s\n", executor.EntryPoint())
	fmt.Fprintf(w, "finish: %s\n\n", executor.FinishPoint())
	fmt.Fprintln(w, "stages:")
	for _, name := range executor.Stages() {
		fmt.Fprintf(w, "  %s\n", name)
	}
	fmt.Fprintln(w, "\ntransitions:")
	for _, edge := range executor.Edges() {
		fmt.Fprintf(w, "  %s -> %s (%s)\n", edge.From, edge.To, edge.Kind)
	}
	fmt.Fprintln(w, "\nfields:")
	for _, field := range executor.Schema().Fields() {
		fmt.Fprintf(w, "  %s (%s)\n", field.Name, field.Policy)
	}
}

func init() {
	rootCmd.AddCommand(recordSchemaCmd, graphCmd)
}
