package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/seedscan/internal/infra/storage/postgres"
)

var resultsLimit int

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List the most recent stored scan results",
	Run:   runResults,
}

func init() {
	resultsCmd.Flags().IntVar(&resultsLimit, "limit", 20, "number of results to show")
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Database.URL == "" {
		slog.Error("No database configured")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	docs, err := postgres.NewResultRepo(db).ListRecent(ctx, resultsLimit)
	if err != nil {
		slog.Error("Failed to query results", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tCREATED\tSOURCE\tFINGERPRINT\tACTIVE\tBALANCE")
	for _, d := range docs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			d.ID,
			d.CreatedAt.Format(time.RFC3339),
			d.Source,
			d.ExtendedKeys.RootFingerprint,
			d.Totals.WithActivity,
			d.Totals.BalanceSats,
		)
	}
	_ = w.Flush()
}
