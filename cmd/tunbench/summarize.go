package main

//
// The summarize subcommand
//

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/bassosimone/tunbench"
	"github.com/montanaflynn/stats"
	"github.com/spf13/cobra"
)

// registerSummarize registers the summarize subcommand.
func registerSummarize(rootCmd *cobra.Command, globalOptions *Options) {
	subCmd := &cobra.Command{
		Use:   "summarize FILE",
		Short: "Prints per-protocol statistics of a CSV or SQLite results file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			measurements, err := readResults(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			summarize(os.Stdout, measurements)
			return nil
		},
	}
	rootCmd.AddCommand(subCmd)
}

// readResults reads results from a SQLite database (.db or .sqlite
// extension) or from a CSV file.
func readResults(ctx context.Context, path string) ([]*tunbench.Measurement, error) {
	if !strings.HasSuffix(path, ".db") && !strings.HasSuffix(path, ".sqlite") {
		return tunbench.ReadCSVFile(path)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := tunbench.NewSQLiteSink(ctx, path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return db.Measurements(ctx)
}

// summarize writes count, mean and median of each column per protocol.
// Empty values are skipped.
func summarize(w io.Writer, measurements []*tunbench.Measurement) {
	var protocols []tunbench.ProtocolName
	byProtocol := map[tunbench.ProtocolName][]*tunbench.Measurement{}
	for _, m := range measurements {
		if _, found := byProtocol[m.Protocol]; !found {
			protocols = append(protocols, m.Protocol)
		}
		byProtocol[m.Protocol] = append(byProtocol[m.Protocol], m)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	for _, protocol := range protocols {
		fmt.Fprintf(tw, "%s (%d runs)\tN\tMEAN\tMEDIAN\n", protocol, len(byProtocol[protocol]))
		for _, column := range tunbench.ResultHeader[1:] {
			data := columnData(byProtocol[protocol], column)
			mean, median := "-", "-"
			if v, err := stats.Mean(data); err == nil {
				mean = fmt.Sprintf("%.3f", v)
			}
			if v, err := stats.Median(data); err == nil {
				median = fmt.Sprintf("%.3f", v)
			}
			fmt.Fprintf(tw, "  %s\t%d\t%s\t%s\n", column, len(data), mean, median)
		}
		fmt.Fprintf(tw, "\n")
	}
}

// columnData returns the non-empty values of the named column.
func columnData(measurements []*tunbench.Measurement, column string) stats.Float64Data {
	var out stats.Float64Data
	for _, m := range measurements {
		v, _ := m.Column(column)
		if value, ok := v.Get(); ok {
			out = append(out, value)
		}
	}
	return out
}
