package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	wlog "github.com/wecanfarm/wecanfarm/internal/log"
	"github.com/wecanfarm/wecanfarm/internal/tui"
)

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Open the interactive app",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(cmd)
	},
}

// runApp starts the full-screen app. Logs go to a file since the
// terminal belongs to the UI.
func runApp(cmd *cobra.Command) error {
	path := cfg.LogFile
	if path == "" {
		p, err := wlog.DefaultFile()
		if err != nil {
			return fmt.Errorf("resolving log file: %w", err)
		}
		path = p
	}
	f, err := wlog.OpenFile(path)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()

	logger := wlog.New(cfg.Environment, f)
	a, err := newApp(logger)
	if err != nil {
		return err
	}
	logger.Info().Str("server", cfg.BaseURL).Msg("starting app")
	return tui.Run(cmd.Context(), a, logger)
}

func init() {
	rootCmd.AddCommand(appCmd)
}
