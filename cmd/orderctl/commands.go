package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"order-intake/internal/app"
	"order-intake/internal/config"
	"order-intake/internal/lifecycle"
	"order-intake/internal/logging"
	"order-intake/internal/models"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	ConfigPath string
	Format     string // "text" | "json"
	Verbose    bool
	cfg        *config.Config
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "orderctl",
		Short:         "Purchase order intake maintenance",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format != "text" && opts.Format != "json" {
				return fmt.Errorf("invalid format %q: must be text or json", opts.Format)
			}
			cfg, err := config.LoadConfig(opts.ConfigPath)
			if err != nil {
				return err
			}
			level := "warn"
			if opts.Verbose {
				level = "debug"
			}
			if err := logging.Init(logging.Config{Level: level, Format: cfg.Logging.Format}); err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config/config.yaml", "config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging")

	cmd.AddCommand(newScanCommand(opts))
	cmd.AddCommand(newTrashCommand(opts))
	cmd.AddCommand(newPurgesCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newReindexCommand(opts))
	return cmd
}

func withApp(opts *rootOptions, fn func(ctx context.Context, a *app.App) error) error {
	a, err := app.New(opts.cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(context.Background(), a)
}

func newScanCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one manual scan cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				n, err := a.Scans.RequestManualScan(ctx)
				if err != nil {
					return err
				}
				last := a.Scans.Status().LastRun
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), last)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "run %s: fetched %d, admitted %d, duplicates %d, skipped %d, failed %d\n",
					last.RunID, last.Fetched, n, last.Duplicates, last.Skipped, last.Failed)
				return nil
			})
		},
	}
}

func newTrashCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trash",
		Short: "Inspect and purge soft-deleted orders",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List trashed orders (expired entries are purged first)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				entries, err := a.Lifecycle.ListTrash(ctx)
				if err != nil {
					return err
				}
				return renderTrash(cmd.OutOrStdout(), opts.Format, entries)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Purge expired trash now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				n, err := a.Sweeper.RunNow(ctx)
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), map[string]int{"purged": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired order(s)\n", n)
				return nil
			})
		},
	})
	return cmd
}

func newPurgesCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "purges",
		Short: "Show the purge log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				logs, err := a.Lifecycle.RecentPurges(ctx, limit)
				if err != nil {
					return err
				}
				return renderPurges(cmd.OutOrStdout(), opts.Format, logs)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of entries")
	return cmd
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// OpenStore runs the schema migration for SQL backends
			_, closeStore, err := app.OpenStore(opts.cfg.Database)
			if err != nil {
				return err
			}
			defer closeStore()
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", opts.cfg.Database.Type)
			return nil
		},
	}
}

func newReindexCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Push all active orders into the search index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				n, err := a.Reindex(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "indexed %d order(s)\n", n)
				return nil
			})
		},
	}
}

func renderTrash(w io.Writer, format string, entries []lifecycle.TrashEntry) error {
	if format == "json" {
		return writeJSON(w, entries)
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "Order Number", "Product", "Status", "Deleted At", "Days Remaining")
	for _, e := range entries {
		deleted := ""
		if e.DeletedAt != nil {
			deleted = e.DeletedAt.Format(time.DateTime)
		}
		if err := table.Append([]string{
			strconv.FormatUint(uint64(e.ID), 10),
			e.OrderNumber,
			e.ProductName,
			string(e.OrderStatus),
			deleted,
			strconv.Itoa(e.DaysRemaining),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderPurges(w io.Writer, format string, logs []models.PurgeLog) error {
	if format == "json" {
		return writeJSON(w, logs)
	}

	table := tablewriter.NewWriter(w)
	table.Header("Order ID", "Order Number", "Product", "Reason", "Trashed At", "Purged At")
	for _, l := range logs {
		if err := table.Append([]string{
			strconv.FormatUint(uint64(l.OrderID), 10),
			l.OrderNumber,
			l.ProductName,
			l.Reason,
			l.TrashedAt.Format(time.DateTime),
			l.PurgedAt.Format(time.DateTime),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
