package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dvanle/relay/internal/core/config"
	"github.com/dvanle/relay/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the outbox backlog for every route",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
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

	rows, err := db.QueryContext(ctx, `
		SELECT index_id, source_id, status, COUNT(*)
		FROM outbox_records
		GROUP BY index_id, source_id, status
		ORDER BY index_id, source_id, status`)
	if err != nil {
		slog.Error("Failed to query outbox", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rows.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "INDEX\tSOURCE\tSTATUS\tRECORDS")

	for rows.Next() {
		var indexID, sourceID, status string
		var count int64
		if err := rows.Scan(&indexID, &sourceID, &status, &count); err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", indexID, sourceID, status, count)
	}
	_ = w.Flush()
}
