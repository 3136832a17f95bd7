package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"veloskill/internal/service"
)

var axisOrder = []string{
	service.AxisEndurance,
	service.AxisExplosivity,
	service.AxisMental,
	service.AxisStrategy,
}

func newXPCmd(opts *options) *cobra.Command {
	var recompute bool

	cmd := &cobra.Command{
		Use:     "xp",
		Short:   "Show XP and level per skill axis",
		GroupID: "progress",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := opts.session()
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				get := a.progression.GetOrComputeXP
				if recompute {
					get = a.progression.RecomputeXPNow
				}
				view, err := get(ctx, sess)
				if view == nil {
					return err
				}
				if err != nil {
					a.log.WithError(err).Warn("Global progress was not updated")
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), view)
				}
				printXP(cmd.OutOrStdout(), view)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&recompute, "recompute", false, "ignore the cached snapshot")
	return cmd
}

func printXP(w io.Writer, view *service.XPView) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AXIS\tXP\tLEVEL\tNEXT")
	for _, axis := range axisOrder {
		info := view.Levels[axis]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.0f%%\n", axis, info.XP, info.Level, info.Progress*100)
	}
	tw.Flush()

	if g := view.Global; g != nil {
		switch {
		case g.Throttled:
			fmt.Fprintf(w, "\nGlobal: level %d, %d XP (recently updated)\n", g.Level, g.TotalXP)
		case g.LeveledUp:
			fmt.Fprintf(w, "\nGlobal: +%d XP, level up %d -> %d\n", g.GainedXP, g.PreviousLevel, g.Level)
		default:
			fmt.Fprintf(w, "\nGlobal: +%d XP, level %d\n", g.GainedXP, g.Level)
		}
	}
}

func newProgressCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "progress",
		Short:   "Show the global level",
		GroupID: "progress",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := opts.session()
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				gp, err := a.progression.GetGlobalProgress(ctx, sess)
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), gp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Level %d, %d XP\n", gp.Level, gp.TotalXP)
				return nil
			})
		},
	}
}

func newChallengesCmd(opts *options) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:     "challenges",
		Short:   "List boss challenges and their progress",
		GroupID: "progress",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := opts.session()
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if refresh {
					report, err := a.challenges.UpdateProgress(ctx, sess)
					if report == nil {
						return err
					}
					if err != nil {
						a.log.WithError(err).Warn("Some challenges failed to update")
					}
					if !opts.json {
						printReport(cmd.OutOrStdout(), report)
					}
				}

				statuses, err := a.challenges.GetChallengeStatus(ctx, sess)
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), statuses)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CHALLENGE\tLEVEL\tSTATUS\tPROGRESS")
				for _, s := range statuses {
					name := s.Challenge.Name
					if name == "" {
						name = s.Challenge.ID
					}
					fmt.Fprintf(tw, "%s\t%d\t%s\t%.0f%%\n", name, s.Challenge.LevelRequired, s.Status, s.Progress*100)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "recompute progress and apply rewards first")
	return cmd
}

func printReport(w io.Writer, report *service.ProgressReport) {
	for _, id := range report.Completed {
		fmt.Fprintf(w, "Completed %s", id)
		if r := report.Rewards[id]; r != nil && r.XPApplied && r.BonusXP > 0 {
			fmt.Fprintf(w, " (+%d XP)", r.BonusXP)
		}
		fmt.Fprintln(w)
	}
	for _, id := range report.Expired {
		fmt.Fprintf(w, "Expired %s\n", id)
	}
}

func newMasteriesCmd(opts *options) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:     "masteries",
		Short:   "List masteries and unlocked levels",
		GroupID: "progress",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := opts.session()
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if refresh {
					raised, err := a.masteries.Refresh(ctx, sess)
					if err != nil {
						a.log.WithError(err).Warn("Some masteries failed to refresh")
					}
					if !opts.json {
						for _, id := range raised {
							fmt.Fprintf(cmd.OutOrStdout(), "Unlocked %s\n", id)
						}
					}
				}

				views, err := a.masteries.List(ctx, sess)
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), views)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "MASTERY\tCATEGORY\tLEVEL\tVALUE\tNEXT")
				for _, v := range views {
					next := "-"
					if v.NextTarget != nil {
						next = fmt.Sprintf("%g", *v.NextTarget)
					}
					fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%g\t%s\n", v.Name, v.Category, v.Level, v.MaxLevel, v.Value, next)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-evaluate conditions first")
	return cmd
}

func newBadgesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "badges",
		Short:   "List earned badges, newest first",
		GroupID: "progress",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := opts.session()
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				badges, err := a.challenges.ListBadges(ctx, sess)
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), badges)
				}
				if len(badges) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No badges yet")
					return nil
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "BADGE\tTYPE\tGRANTED")
				for _, b := range badges {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Title, b.Type, b.GrantedAt.Local().Format("2006-01-02"))
				}
				return tw.Flush()
			})
		},
	}
}

func newDashboardCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "dashboard",
		Short:   "Sync if stale, then refresh XP, challenges and masteries",
		GroupID: "progress",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := opts.session()
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				dash, err := a.dashboard.Refresh(ctx, sess)
				if dash == nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), dash)
				}

				w := cmd.OutOrStdout()
				if dash.Sync != nil {
					printSyncResult(w, dash.Sync)
				}
				if dash.XP != nil {
					printXP(w, dash.XP)
				}
				if dash.Challenges != nil {
					printReport(w, dash.Challenges)
				}
				for _, id := range dash.Masteries {
					fmt.Fprintf(w, "Unlocked %s\n", id)
				}
				if dash.Global != nil {
					fmt.Fprintf(w, "Level %d, %d XP\n", dash.Global.Level, dash.Global.TotalXP)
				}

				steps := make([]string, 0, len(dash.Failures))
				for step := range dash.Failures {
					steps = append(steps, step)
				}
				sort.Strings(steps)
				for _, step := range steps {
					fmt.Fprintf(w, "  %s failed: %s\n", step, dash.Failures[step])
				}
				return nil
			})
		},
	}
}
