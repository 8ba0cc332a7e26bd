package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banshee-data/paramsweep/internal/config"
	"github.com/banshee-data/paramsweep/internal/sweep"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print the combinations an experiment would run",
		Long: `Generate loads an experiment file, samples every parameter and applies the
correlation rules, then prints one line per combination without launching
anything.

Examples:
  paramsweep generate -f experiment.yaml
  paramsweep generate -f experiment.yaml --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := config.Load(file)
			if err != nil {
				return err
			}
			exp, err := cfg.Build(traceLogger(cmd))
			if err != nil {
				return err
			}
			s, err := exp.Generate()
			if err != nil {
				return err
			}
			if jsonOut {
				return writeSweepJSON(cmd.OutOrStdout(), s, exp.Warnings())
			}
			return writeSweepTable(cmd.OutOrStdout(), s)
		},
	}
	cmd.Flags().StringP("file", "f", "", "Experiment file (.yaml, .yml or .json)")
	cmd.MarkFlagRequired("file")
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func writeSweepTable(w io.Writer, s *sweep.Sweep) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(append([]string{"#"}, s.Names...), "\t"))
	for i, c := range s.Combinations {
		cells := make([]string, 0, len(c)+1)
		cells = append(cells, strconv.Itoa(i))
		for _, v := range c {
			cells = append(cells, sweep.Format(v))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d combination(s)\n", s.Len())
	return nil
}

func writeSweepJSON(w io.Writer, s *sweep.Sweep, warnings []string) error {
	out := struct {
		Names        []string `json:"names"`
		Combinations [][]any  `json:"combinations"`
		Warnings     []string `json:"warnings,omitempty"`
	}{s.Names, s.Combinations, warnings}
	if out.Names == nil {
		out.Names = []string{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
