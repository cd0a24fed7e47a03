package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"studyrun/internal/bootstrap"
	sessiondto "studyrun/internal/modules/session/dto"
	"studyrun/internal/platform/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	dataDir    string
	configFile string
	asJSON     bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "studyrun",
		Short:         "Study session timing and task sequencing",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.dataDir, "data", ".", "data directory")
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file (yaml)")
	root.PersistentFlags().BoolVar(&flags.asJSON, "json", false, "print JSON output")

	root.AddCommand(newSequenceCmd(flags))
	root.AddCommand(newSessionCmd(flags))
	root.AddCommand(newRunCmd(flags))
	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newSummaryCmd(flags))
	root.AddCommand(newRecomputeCmd(flags))
	return root
}

func loadApp(flags *rootFlags) (*bootstrap.App, error) {
	cfg, err := config.Load(flags.dataDir, flags.configFile)
	if err != nil {
		return nil, err
	}
	return bootstrap.New(cfg)
}

// withApp runs fn against a fresh app and closes it afterwards, which also
// closes any session fn brought live.
func withApp(flags *rootFlags, fn func(ctx context.Context, app *bootstrap.App) error) error {
	app, err := loadApp(flags)
	if err != nil {
		return err
	}
	ctx := context.Background()
	defer app.Close(ctx)
	return fn(ctx, app)
}

func newSequenceCmd(flags *rootFlags) *cobra.Command {
	var device string
	cmd := &cobra.Command{
		Use:   "sequence <code>",
		Short: "Preview the task sequence a session code produces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				out, err := app.SessionCLI.Preview(ctx, args[0], device)
				if err != nil {
					return err
				}
				if flags.asJSON {
					return printJSON(cmd.OutOrStdout(), out)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "code=%s seed=%d device=%s\n%s\n", out.Code, out.Seed, out.DeviceClass, strings.Join(out.Sequence, " "))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&device, "device", "desktop", "device class: desktop|mobile")
	return cmd
}

func newSessionCmd(flags *rootFlags) *cobra.Command {
	session := &cobra.Command{Use: "session", Short: "Session commands"}

	var input sessiondto.CreateInput
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session and print its code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sessionCall(cmd, flags, func(ctx context.Context, app *bootstrap.App) (sessiondto.SessionOutput, error) {
				return app.SessionCLI.Create(ctx, input)
			})
		},
	}
	createCmd.Flags().StringVar(&input.Email, "email", "", "participant email")
	createCmd.Flags().StringVar(&input.Name, "name", "", "participant name")
	createCmd.Flags().StringVar(&input.DeviceClass, "device", "", "device class: desktop|mobile")
	createCmd.Flags().StringVar(&input.UserAgent, "user-agent", "", "user agent used to detect the device class")
	createCmd.Flags().StringSliceVar(&input.Exemptions, "exempt", nil, "exemption tags")
	createCmd.Flags().StringToStringVar(&input.Meta, "meta", nil, "participant metadata key=value")
	_ = createCmd.MarkFlagRequired("email")

	var reason string
	skipCmd := &cobra.Command{
		Use:   "skip <code> [task]",
		Short: "Skip the current (or named) task",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sessionCall(cmd, flags, func(ctx context.Context, app *bootstrap.App) (sessiondto.SessionOutput, error) {
				return app.SessionCLI.Skip(ctx, args[0], optionalArg(args, 1), reason)
			})
		},
	}
	skipCmd.Flags().StringVar(&reason, "reason", "", "skip reason, e.g. an exemption tag")

	session.AddCommand(
		createCmd,
		codeCmd(flags, "resume", "Resume a saved session", func(ctx context.Context, app *bootstrap.App, code string) (sessiondto.SessionOutput, error) {
			return app.SessionCLI.Resume(ctx, code)
		}),
		&cobra.Command{
			Use:   "complete <code> [task]",
			Short: "Complete the current (or named) task",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return sessionCall(cmd, flags, func(ctx context.Context, app *bootstrap.App) (sessiondto.SessionOutput, error) {
					return app.SessionCLI.Complete(ctx, args[0], optionalArg(args, 1))
				})
			},
		},
		skipCmd,
		&cobra.Command{
			Use:   "recording <code> <idle|recording|uploaded|failed>",
			Short: "Set the recording status",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return sessionCall(cmd, flags, func(ctx context.Context, app *bootstrap.App) (sessiondto.SessionOutput, error) {
					return app.SessionCLI.Recording(ctx, args[0], args[1])
				})
			},
		},
		codeCmd(flags, "status", "Show a session", func(ctx context.Context, app *bootstrap.App, code string) (sessiondto.SessionOutput, error) {
			return app.SessionCLI.Status(ctx, code)
		}),
	)
	return session
}

func codeCmd(flags *rootFlags, use, short string, fn func(context.Context, *bootstrap.App, string) (sessiondto.SessionOutput, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <code>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sessionCall(cmd, flags, func(ctx context.Context, app *bootstrap.App) (sessiondto.SessionOutput, error) {
				return fn(ctx, app, args[0])
			})
		},
	}
}

func sessionCall(cmd *cobra.Command, flags *rootFlags, fn func(context.Context, *bootstrap.App) (sessiondto.SessionOutput, error)) error {
	return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
		out, err := fn(ctx, app)
		if err != nil {
			return err
		}
		if flags.asJSON {
			return printJSON(cmd.OutOrStdout(), out)
		}
		printSession(cmd.OutOrStdout(), out)
		return nil
	})
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run <code>",
		Short: "Run a session in the terminal UI",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			app, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return bootstrap.RunSession(ctx, app, args[0])
		},
	}
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the aggregator HTTP API",
		RunE: func(_ *cobra.Command, _ []string) error {
			app, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return bootstrap.Serve(ctx, app)
		},
	}
}

func newSummaryCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <code>",
		Short: "Show the aggregated record for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				out, err := app.AggregatorCLI.Summary(ctx, args[0])
				if err != nil {
					return err
				}
				if flags.asJSON {
					return printJSON(cmd.OutOrStdout(), out)
				}
				w := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(w, "code=%s email=%s device=%s status=%s events=%d\n", out.Code, out.Email, out.DeviceClass, out.Status, out.EventCount)
				_, _ = fmt.Fprintf(w, "completed=%d/%d finished=%s exempted=%s\n", out.CompletedCount, out.RequiredCount, strings.Join(out.FinishedTasks, ","), strings.Join(out.ExemptedTasks, ","))
				_, _ = fmt.Fprintf(w, "total=%.0fs active=%.0fs paused=%.0fs idle=%.0fs inactive=%.0fs\n",
					out.Totals.TotalSeconds, out.Totals.ActiveSeconds, out.Totals.PausedSeconds, out.Totals.IdleSeconds, out.Totals.InactiveSeconds)
				return nil
			})
		},
	}
}

func newRecomputeCmd(flags *rootFlags) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "recompute [code]",
		Short: "Rebuild aggregated records from the event log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("pass a session code or --all")
			}
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				if all {
					out, err := app.AggregatorCLI.RecomputeAll(ctx)
					if err != nil {
						return err
					}
					if flags.asJSON {
						return printJSON(cmd.OutOrStdout(), out)
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "repaired=%d failed=%d\n", out.Repaired, len(out.Failed))
					for _, code := range out.Failed {
						_, _ = fmt.Fprintf(cmd.OutOrStdout(), "failed: %s\n", code)
					}
					return nil
				}
				out, err := app.AggregatorCLI.Recompute(ctx, args[0])
				if err != nil {
					return err
				}
				if flags.asJSON {
					return printJSON(cmd.OutOrStdout(), out)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "code=%s status=%s completed=%d/%d active=%.0fs\n", out.Code, out.Status, out.CompletedCount, out.RequiredCount, out.Totals.ActiveSeconds)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "recompute every session")
	return cmd
}

func optionalArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSession(w io.Writer, out sessiondto.SessionOutput) {
	_, _ = fmt.Fprintf(w, "code=%s email=%s device=%s\n", out.Code, out.Email, out.DeviceClass)
	current := out.CurrentTask
	if out.Done {
		current = "(done)"
	}
	_, _ = fmt.Fprintf(w, "sequence=%s current=%s completed=%s skipped=%s\n",
		strings.Join(out.Sequence, ","), current, strings.Join(out.CompletedTasks, ","), strings.Join(out.SkippedTasks, ","))
	_, _ = fmt.Fprintf(w, "elapsed=%s active=%s paused=%s pauses=%d activity=%.0f%%\n",
		out.Session.Elapsed.Truncate(time.Second), out.Session.Active.Truncate(time.Second), out.Session.Paused.Truncate(time.Second),
		out.Session.PauseCount, out.Session.ActivityPercent)
	if out.Paused {
		_, _ = fmt.Fprintf(w, "paused=%s\n", out.PauseReason)
	}
	if out.RecordingStatus != "" {
		_, _ = fmt.Fprintf(w, "recording=%s\n", out.RecordingStatus)
	}
}
