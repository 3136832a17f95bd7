// Package cli is the veloskill command line: connecting athletes, running
// syncs, inspecting progression and serving the HTTP API.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"veloskill/internal/service"
)

type options struct {
	configPath string
	logLevel   string
	userID     string
	json       bool
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd builds the full command tree
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "veloskill",
		Short:        "Turn Strava rides into skill XP, levels and boss challenges",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ~/.veloskill/config.json)")
	flags.StringVar(&opts.logLevel, "log-level", "", "override log.level from the config")
	flags.StringVarP(&opts.userID, "user", "u", "", "user id the command acts for")
	flags.BoolVar(&opts.json, "json", false, "print JSON instead of text")

	root.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "progress", Title: "Progression:"},
		&cobra.Group{ID: "admin", Title: "Administration:"},
	)

	root.AddCommand(
		newConnectCmd(opts),
		newSyncCmd(opts),
		newSyncAllCmd(opts),
		newXPCmd(opts),
		newProgressCmd(opts),
		newChallengesCmd(opts),
		newMasteriesCmd(opts),
		newBadgesCmd(opts),
		newDashboardCmd(opts),
		newCatalogCmd(opts),
		newServeCmd(opts),
	)
	return root
}

var errNoUser = errors.New("--user is required")

// withApp builds the app, runs fn and closes the app
func withApp(cmd *cobra.Command, opts *options, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func (o *options) session() (service.Session, error) {
	if o.userID == "" {
		return service.Session{}, errNoUser
	}
	return service.Session{UserID: o.userID}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
