package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wecanfarm/wecanfarm/internal/watch"
)

var (
	watchSettle time.Duration
	watchFor    time.Duration
	watchReport string
	watchFormat string
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Analyze photos as they land in a folder",
	Long: "Watches a capture folder (default: the profile capture folder, or the\n" +
		"current directory) and analyzes each new photo once it finishes copying.\n" +
		"Stops on Ctrl+C.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if activeProfile != nil && activeProfile.CaptureDir != "" {
			dir = activeProfile.CaptureDir
		}
		if len(args) == 1 {
			dir = args[0]
		}

		logger := newLogger(cmd)
		a, err := newApp(logger)
		if err != nil {
			return err
		}
		user, err := signIn(cmd.Context(), a)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if watchFor > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, watchFor)
			defer cancel()
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Watching %s as %s. Press Ctrl+C to stop.\n", dir, user.Username)
		analyzed := 0
		w := &watch.Watcher{
			Dir:      dir,
			Analyzer: a,
			Settle:   watchSettle,
			Log:      logger,
			OnResult: func(r watch.Result) {
				if r.Err != nil {
					fmt.Fprintf(out, "%s\n  %s\n", r.Path, userError{r.Err})
					return
				}
				analyzed++
				printOutcome(out, r.Outcome)
			},
		}
		if err := w.Run(ctx); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		fmt.Fprintf(out, "Stopped. %d photo(s) analyzed.\n", analyzed)

		if watchReport != "" {
			if err := writeReport(a, watchReport, reportFormat(watchFormat)); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}
			cmd.PrintErrf("Report written to %s\n", watchReport)
		}
		return nil
	},
}

func init() {
	addCredentialFlags(watchCmd)
	watchCmd.Flags().DurationVar(&watchSettle, "settle", watch.DefaultSettle, "quiet time before a new file is analyzed")
	watchCmd.Flags().DurationVar(&watchFor, "for", 0, "stop after this long (0 watches until interrupted)")
	watchCmd.Flags().StringVar(&watchReport, "report", "", "write a session report to this file on exit")
	watchCmd.Flags().StringVar(&watchFormat, "format", "", "report format: markdown or json (default from profile)")
	rootCmd.AddCommand(watchCmd)
}
