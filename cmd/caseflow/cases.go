package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "Inspect stored cases",
}

var casesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cases, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newStores(cmd.Context())
		if err != nil {
			return err
		}
		records, err := s.cases.List(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tOUTCOME\tCREATED\tCOMPLAINT")
		for _, r := range records {
			text := r.Complaint
			if len(text) > 48 {
				text = text[:48] + "..."
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Status, r.Outcome, r.CreatedAt.Format(time.DateTime), text)
		}
		return tw.Flush()
	},
}

var casesGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print one case as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newStores(cmd.Context())
		if err != nil {
			return err
		}
		record, err := s.cases.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), record)
	},
}

func init() {
	casesCmd.AddCommand(casesListCmd, casesGetCmd)
	rootCmd.AddCommand(casesCmd)
}
