package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-kratos/caseflow/complaint"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run a list of complaints",
	Long:  "Run every complaint from --file (one per line) or the built-in samples, and write the results to --out.",
	Args:  cobra.NoArgs,
	RunE:  runBatch,
}

func init() {
	batchCmd.Flags().StringP("file", "f", "", "File with one complaint per line (default: built-in samples)")
	batchCmd.Flags().StringP("out", "o", "results.json", "Where to write the results")
	rootCmd.AddCommand(batchCmd)
}

func readComplaints(path string) ([]string, error) {
	if path == "" {
		return complaint.Samples, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	file, _ := cmd.Flags().GetString("file")
	outPath, _ := cmd.Flags().GetString("out")
	complaints, err := readComplaints(file)
	if err != nil {
		return err
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.shutdown(ctx)

	w := cmd.OutOrStdout()
	results := make([]result, 0, len(complaints))
	for i, text := range complaints {
		preview := text
		if len(preview) > 60 {
			preview = preview[:60] + "..."
		}
		fmt.Fprintf(w, "\n[%d/%d] Processing: %s\n", i+1, len(complaints), preview)
		record, c, err := complaint.Process(ctx, a.stores.cases, a.executor, text)
		if c == nil {
			return err
		}
		fmt.Fprintln(w, complaint.RenderTrace(c))
		results = append(results, newResult(record, c, err))
	}

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := writeJSON(f, results); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nDone! Results saved to %s\n", outPath)
	return nil
}
