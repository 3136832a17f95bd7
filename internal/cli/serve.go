package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"veloskill/internal/api"
	"veloskill/internal/catalog"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	var (
		addr     string
		schedule bool
	)

	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the HTTP API and run the scheduled batch sync",
		GroupID: "admin",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.cfg.Validate(); err != nil {
				return err
			}

			if path := a.cfg.Catalog.Path; path != "" {
				if _, err := importCatalog(ctx, a, path); err != nil {
					return err
				}
			}

			if addr == "" {
				addr = a.cfg.Server.ListenAddr
			}
			srv := api.NewServer(addr, a.store, a.services(), a.log)
			if err := srv.Start(); err != nil {
				return err
			}

			wait := func() {}
			if schedule {
				wait = startSchedule(ctx, a, a.cfg.Server.ScheduleInterval.Duration)
			}

			<-ctx.Done()
			a.log.Info("Shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			err = srv.Shutdown(shutdownCtx)

			// The store must outlive an in-flight batch
			wait()
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.listen_addr)")
	cmd.Flags().BoolVar(&schedule, "schedule", true, "run the batch sync every server.schedule_interval")
	return cmd
}

// startSchedule runs the scheduler in the background.
// The returned func blocks until it has stopped.
func startSchedule(ctx context.Context, a *app, interval time.Duration) (wait func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		runSchedule(ctx, a, interval)
	}()
	return func() { <-done }
}

// runSchedule runs a batch sync immediately, then on every tick until ctx ends
func runSchedule(ctx context.Context, a *app, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		batch, err := a.sync.RunScheduledSyncAll(ctx)
		if err != nil {
			a.log.WithError(err).Error("Scheduled sync failed")
		} else if batch.Failed > 0 {
			a.log.WithFields(logrus.Fields{
				"run_id": batch.RunID,
				"failed": batch.Failed,
			}).Warn("Scheduled sync had failures")
		}

		select {
		case <-ctx.Done():
			a.log.Info("Sync scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

func newCatalogCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "catalog",
		Short:   "Manage challenge and mastery definitions",
		GroupID: "admin",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Upsert challenges and masteries from a YAML catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				c, err := importCatalog(ctx, a, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d challenge(s) and %d mastery definition(s)\n",
					len(c.Challenges), len(c.Masteries))
				return nil
			})
		},
	})
	return cmd
}

func importCatalog(ctx context.Context, a *app, path string) (*catalog.Catalog, error) {
	c, err := catalog.Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.Import(ctx, a.store); err != nil {
		return nil, err
	}
	a.log.WithFields(logrus.Fields{
		"path":       path,
		"challenges": len(c.Challenges),
		"masteries":  len(c.Masteries),
	}).Info("Catalog imported")
	return c, nil
}
