// Package main provides the spherectl operator CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sharesphere/spherecore/internal/api/auth"
	"github.com/sharesphere/spherecore/internal/app"
	"github.com/sharesphere/spherecore/internal/engine"
	"github.com/sharesphere/spherecore/pkg/config"
	"github.com/sharesphere/spherecore/pkg/logging"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spherectl",
		Short: "Operate a ShareSphere store",
		Long: `Operator commands against the configured store.

Configuration is read the same way as the API server: config.yaml in the
working directory, $HOME/.spherecore or /etc/spherecore, then SPHERE_* variables.

Examples:
  spherectl reconcile                 # Report aggregates that drifted from the vote log
  spherectl reconcile --repair        # Rewrite them
  spherectl rescore                   # Decay the stored scores of recent posts
  spherectl promote alice             # Make alice a platform admin
  spherectl token 42                  # Issue a bearer token for user 42
`,
		SilenceUsage: true,
	}

	cmd.AddCommand(reconcileCmd())
	cmd.AddCommand(rescoreCmd())
	cmd.AddCommand(promoteCmd())
	cmd.AddCommand(tokenCmd())

	return cmd
}

func reconcileCmd() *cobra.Command {
	var (
		repair     bool
		workers    int
		batchSize  int
		outputJSON bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute vote aggregates and scores from the vote log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(timeout, func(ctx context.Context, eng *engine.Engine) error {
				report, err := engine.NewReconciler(eng, engine.ReconcileOptions{
					Workers:   workers,
					BatchSize: batchSize,
					Repair:    repair,
				}).Run(ctx)
				if err != nil {
					return err
				}
				return printReport(cmd, report, outputJSON)
			})
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Rewrite mismatched aggregates and scores")
	cmd.Flags().IntVar(&workers, "workers", 4, "Posts checked concurrently")
	cmd.Flags().IntVar(&batchSize, "batch-size", 200, "Posts read per page")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output the report as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Overall timeout")

	return cmd
}

func printReport(cmd *cobra.Command, report *engine.Report, outputJSON bool) error {
	out := cmd.OutOrStdout()
	if outputJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "Checked %d posts and %d comments\n", report.Posts, report.Comments)
	if len(report.Mismatches) == 0 {
		fmt.Fprintln(out, "No mismatches")
		return nil
	}
	fmt.Fprintf(out, "%d mismatches:\n", len(report.Mismatches))
	for _, m := range report.Mismatches {
		target := fmt.Sprintf("post %d", m.PostID)
		if m.CommentID.Valid {
			target = fmt.Sprintf("comment %d on post %d", m.CommentID.Int64, m.PostID)
		}
		fmt.Fprintf(out, "  %-28s score %d/%d -> %d/%d drift=%t repaired=%t\n",
			target, m.StoredScore, m.StoredMinus, m.LiveScore, m.LiveMinus, m.ScoreDrift, m.Repaired)
	}
	return nil
}

func rescoreCmd() *cobra.Command {
	var (
		window  time.Duration
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "rescore",
		Short: "Recompute the time-decayed scores of recent posts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if window <= 0 {
				return fmt.Errorf("invalid window %s", window)
			}
			return withEngine(timeout, func(ctx context.Context, eng *engine.Engine) error {
				n, err := eng.Ranking.RefreshScores(ctx, window)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rescored %d posts\n", n)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&window, "window", 48*time.Hour, "Rescore posts anchored within this window")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Overall timeout")
	return cmd
}

func promoteCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "promote <username>",
		Short: "Grant the platform admin role to a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(timeout, func(ctx context.Context, eng *engine.Engine) error {
				u, err := eng.Users.PromoteAdmin(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User %s (%d) is now an admin\n", u.Username, u.ID)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Overall timeout")
	return cmd
}

func tokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <user_id>",
		Short: "Issue a bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || userID <= 0 {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("jwt_secret is not configured")
			}
			token, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Issue(userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

// withEngine loads configuration, connects the store and runs fn until it
// returns, the timeout passes or the process is interrupted
func withEngine(timeout time.Duration, fn func(ctx context.Context, eng *engine.Engine) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logging.GetLogger().Sync()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer services.Close()

	if err := fn(ctx, services.Engine); err != nil {
		logging.GetLogger().Error("Command failed", zap.Error(err))
		return err
	}
	return nil
}
