package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/born-ml/tumorclf/internal/dataset"
	"github.com/born-ml/tumorclf/internal/metrics"
	"github.com/born-ml/tumorclf/internal/report"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file>",
		Short: "Compute per-class statistics for a confusion matrix",
		Long: `Read a square confusion matrix (rows are true classes, columns are
predictions) and print per-class accuracy, precision, specificity and
sensitivity. Rows may be whitespace or comma separated; "-" reads stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: runStats,
	}
}

func runStats(cmd *cobra.Command, args []string) error {
	var r io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open confusion matrix: %w", err)
		}
		defer f.Close()
		r = f
	}

	cm, err := metrics.ReadConfusionMatrix(r)
	if err != nil {
		return err
	}
	stats, err := metrics.ComputeStats(cm)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := report.Summary(out, cm, stats); err != nil {
		return err
	}
	fmt.Fprintln(out)
	return writeCounts(out, cm)
}

// writeCounts prints the one-vs-rest counts of every class.
func writeCounts(out io.Writer, cm metrics.ConfusionMatrix) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
		headerStyle.Render("Class"),
		headerStyle.Render("TP"),
		headerStyle.Render("FP"),
		headerStyle.Render("FN"),
		headerStyle.Render("TN"))
	for i := 0; i < cm.NumClasses(); i++ {
		c := metrics.Counts(cm, i)
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", className(i, cm.NumClasses()), c.TP, c.FP, c.FN, c.TN)
	}
	return w.Flush()
}

func className(i, n int) string {
	if n == dataset.NumClasses {
		return dataset.Categories[i]
	}
	return strconv.Itoa(i)
}
