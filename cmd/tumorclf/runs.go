package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/born-ml/tumorclf/internal/config"
	"github.com/born-ml/tumorclf/internal/metrics"
	"github.com/born-ml/tumorclf/internal/storage"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded training runs",
		Long: `List runs recorded by "tumorclf train --db <path>", newest first.
The database path is taken from --db, the db config key or TUMORCLF_DB.`,
		Args: cobra.NoArgs,
		RunE: runRuns,
	}
	cmd.Flags().String("db", "", "SQLite run history database")
	cmd.Flags().Int("limit", 20, "maximum number of runs to show (0 for all)")
	return cmd
}

func runRuns(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		dbPath = viper.GetString(config.KeyDB)
	}
	if dbPath == "" {
		return fmt.Errorf("%w: no database given (use --db)", config.ErrInvalid)
	}
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := storage.Open(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()

	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No runs recorded."))
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		headerStyle.Render("ID"),
		headerStyle.Render("Created"),
		headerStyle.Render("Process"),
		headerStyle.Render("Size"),
		headerStyle.Render("Epochs"),
		headerStyle.Render("LR"),
		headerStyle.Render("Val Acc"),
		headerStyle.Render("Test Acc"))
	for _, r := range runs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%g\t%.4f\t%.4f\n",
			r.ID,
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.Process,
			r.ImageSize,
			r.Epochs,
			r.LearningRate,
			r.ValAccuracy,
			testAccuracy(r.Confusion))
	}
	return w.Flush()
}

// testAccuracy is the overall test accuracy of a stored run.
func testAccuracy(cm metrics.ConfusionMatrix) float64 {
	return float64(cm.Correct()) / float64(max(1, cm.Total()))
}
