package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"veloskill/internal/auth"
	"veloskill/internal/service"
	"veloskill/internal/store"
)

func newConnectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "connect",
		Short:   "Authorize Strava access for an athlete",
		Long:    "Opens the Strava consent page and stores the tokens. Without --user the athlete id becomes the user id.",
		GroupID: "sync",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.cfg.Validate(); err != nil {
					return err
				}

				res, err := auth.Authenticate(ctx, a.oauthConfig(), cmd.OutOrStdout())
				if err != nil {
					return fmt.Errorf("authentication: %w", err)
				}

				userID := opts.userID
				if userID == "" {
					if res.AthleteID == 0 {
						return errors.New("no athlete id in the Strava token response, pass --user")
					}
					userID = strconv.FormatInt(res.AthleteID, 10)
				}

				if err := saveConnection(ctx, a.store, userID, res); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\nConnected athlete %d as user %s\n", res.AthleteID, userID)
				if !res.Private {
					fmt.Fprintln(cmd.OutOrStdout(), "Only public activities were shared, private rides will not be synced")
				}
				return nil
			})
		},
	}
}

// saveConnection stores fresh tokens. A reconnect keeps the sync watermark.
func saveConnection(ctx context.Context, st *store.Store, userID string, res *auth.AuthResult) error {
	_, err := st.GetSyncState(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return st.SaveSyncState(ctx, &store.SyncState{
			UserID:       userID,
			AthleteID:    res.AthleteID,
			AccessToken:  res.Token.AccessToken,
			RefreshToken: res.Token.RefreshToken,
			ExpiresAt:    res.Token.Expiry,
		})
	case err != nil:
		return fmt.Errorf("loading sync state: %w", err)
	}

	return st.UpdateSyncState(ctx, userID, store.SyncStatePatch{
		AccessToken:  &res.Token.AccessToken,
		RefreshToken: &res.Token.RefreshToken,
		ExpiresAt:    &res.Token.Expiry,
	})
}

func newSyncCmd(opts *options) *cobra.Command {
	var ifNeeded bool

	cmd := &cobra.Command{
		Use:     "sync",
		Short:   "Import new activities for one user",
		GroupID: "sync",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := opts.session()
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				run := a.sync.RunSync
				if ifNeeded {
					run = a.sync.SyncIfNeeded
				}
				res, err := run(ctx, sess)
				if err != nil {
					return fmt.Errorf("sync failed (%s): %w", service.ErrorKind(err), err)
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), res)
				}
				printSyncResult(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&ifNeeded, "if-needed", false, "skip when the last sync is recent")
	return cmd
}

func printSyncResult(w io.Writer, res *service.SyncResult) {
	if res.Mode == service.ModeUpToDate {
		fmt.Fprintf(w, "%s is up to date\n", res.UserID)
		return
	}
	fmt.Fprintf(w, "Synced %s (%s): %d imported, %d skipped over %d page(s)\n",
		res.UserID, res.Mode, res.ActivitiesImported, res.ActivitiesSkipped, res.PagesFetched)
	if res.RateLimited {
		fmt.Fprintf(w, "Rate limited, the next run resumes at page %d\n", res.ResumePage)
	}
	for _, msg := range res.ErrorMessages {
		fmt.Fprintf(w, "  warning: %s\n", msg)
	}
}

func newSyncAllCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "sync-all",
		Short:   "Run the scheduled batch sync over every connected user",
		GroupID: "sync",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				batch, err := a.sync.RunScheduledSyncAll(ctx)
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), batch)
				}

				w := cmd.OutOrStdout()
				for _, u := range batch.Users {
					switch {
					case u.Skipped:
						fmt.Fprintf(w, "%s: cooling down for %s\n", u.UserID, u.Cooldown)
					case u.Error != "":
						fmt.Fprintf(w, "%s: failed (%s): %s\n", u.UserID, u.ErrorKind, u.Error)
					case u.Result != nil:
						printSyncResult(w, u.Result)
					}
				}
				fmt.Fprintf(w, "%d user(s), %d failed\n", len(batch.Users), batch.Failed)
				return nil
			})
		},
	}
}
