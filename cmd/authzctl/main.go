// Command authzctl inspects and refreshes the shared permission cache.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-authz/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-authz/internal/app"
	"github.com/odyssey-erp/odyssey-authz/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-authz/internal/platform/db"
	"github.com/odyssey-erp/odyssey-authz/internal/rbac"
)

var (
	outputFlag string

	cfg      *app.Config
	pool     *pgxpool.Pool
	redisCli *redis.Client
	jobsCLI  *cli.JobsCLI
	ops      *cli.AuthzOpsCLI
)

// exitCode carries a non-zero command status to main.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func options() cli.Options {
	return cli.Options{JSONOutput: outputFlag == "json", Stdout: os.Stdout, Stderr: os.Stderr}
}

func status(code int) error {
	if code == 0 {
		return nil
	}
	return exitCode(code)
}

func setup(cmd *cobra.Command, args []string) error {
	if outputFlag != "json" && outputFlag != "table" {
		return fmt.Errorf("unsupported output format %q (expected table or json)", outputFlag)
	}
	var err error
	cfg, err = app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	pool, err = db.New(cmd.Context(), cfg.PGDSN)
	if err != nil {
		return err
	}
	redisCli = cache.New(cfg.RedisAddr)
	jobsCLI = cli.NewJobsCLI(cfg.RedisAddr)
	ops, err = cli.NewAuthzOpsCLI(rbac.NewPGStore(pool), rbac.NewRedisCache(redisCli), cfg.AuthzCacheKey, jobsCLI)
	return err
}

func teardown() {
	if jobsCLI != nil {
		_ = jobsCLI.Close()
	}
	if redisCli != nil {
		_ = redisCli.Close()
	}
	if pool != nil {
		pool.Close()
	}
}

func newFlushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Delete the shared permission cache entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return status(ops.FlushCommand(cmd.Context(), options()))
		},
	}
}

func newRefreshCmd() *cobra.Command {
	var flush bool
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Enqueue a permission refresh for the worker",
		Long: `Enqueue an authz:refresh job. With --flush the worker deletes the
shared cache entry first and notifies every listening process to re-register.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return status(ops.RefreshCommand(cmd.Context(), flush, options()))
		},
	}
	cmd.Flags().BoolVar(&flush, "flush", false, "Flush the cache before re-registering")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List permissions from the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return status(ops.ListCommand(cmd.Context(), options()))
		},
	}
}

func newQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show job queue statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := jobsCLI.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			if outputFlag == "json" {
				return json.NewEncoder(os.Stdout).Encode(stats)
			}
			_, err = fmt.Fprintf(os.Stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
			return err
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:               "authzctl",
		Short:             "Operate the shared permission cache",
		PersistentPreRunE: setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "table", "Output format: table, json")

	rootCmd.AddCommand(newFlushCmd())
	rootCmd.AddCommand(newRefreshCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newQueueCmd())

	err := rootCmd.ExecuteContext(ctx)
	teardown()
	var code exitCode
	switch {
	case errors.As(err, &code):
		os.Exit(int(code))
	case err != nil:
		_, _ = fmt.Fprintln(os.Stderr, "authzctl:", err)
		os.Exit(1)
	}
}
