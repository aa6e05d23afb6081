package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dvanle/relay/internal/core/config"
	"github.com/dvanle/relay/internal/infra/storage/postgres"
)

var requeueCmd = &cobra.Command{
	Use:   "requeue [index] [source]",
	Short: "Move a route's failed and stuck records back to pending",
	Args:  cobra.ExactArgs(2),
	Run:   runRequeue,
}

func init() {
	rootCmd.AddCommand(requeueCmd)
}

func runRequeue(cmd *cobra.Command, args []string) {
	indexID, sourceID := args[0], args[1]

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

	repo := postgres.NewOutboxRepo(db)
	n, err := repo.Requeue(ctx, indexID, sourceID)
	if err != nil {
		slog.Error("Failed to requeue records", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Requeued %d records for %s/%s\n", n, indexID, sourceID)
}
