package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"classroom-judge/internal/judge"
)

type summary struct {
	Points   judge.Points `json:"points"`
	Earned   int          `json:"earned"`
	Possible int          `json:"possible"`
	Failed   []string     `json:"failed"`
}

func newCheckCmd() *cobra.Command {
	var (
		withSummary bool
		strict      bool
	)
	cmd := &cobra.Command{
		Use:   "check <report.json | ->",
		Short: "Print the point mapping for an exercise report",
		Long: "Reads a JSON exercise report and prints {name: [earned, possible]}.\n" +
			"Reports that cannot be judged print {} unless --strict is set.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readReport(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			var points judge.Points
			if strict {
				if points, err = judge.Parse(raw); err != nil {
					return err
				}
			} else {
				points = judge.Judge(string(raw))
			}

			var out any = points
			if withSummary {
				total := points.Total()
				out = summary{Points: points, Earned: total.Earned(), Possible: total.Possible(), Failed: points.Failed()}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().BoolVar(&withSummary, "summary", false, "include earned/possible totals and failed exercises")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail instead of printing {} when the report cannot be judged")
	return cmd
}

// readReport reads the report at path, or stdin for "-".
func readReport(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("report %s does not exist", path)
	}
	if err != nil {
		return nil, fmt.Errorf("stat report: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("report %s is a directory", path)
	}
	return os.ReadFile(path)
}
