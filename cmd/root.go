package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/x/term"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wecanfarm/wecanfarm/internal/api"
	"github.com/wecanfarm/wecanfarm/internal/app"
	"github.com/wecanfarm/wecanfarm/internal/config"
	wlog "github.com/wecanfarm/wecanfarm/internal/log"
	"github.com/wecanfarm/wecanfarm/internal/profile"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

// activeProfile holds the loaded user profile.
var activeProfile *profile.Profile

// serverFlag overrides the configured server for one invocation.
var serverFlag string

var rootCmd = &cobra.Command{
	Use:   "wecanfarm",
	Short: "Diagnose crop diseases from photos and sell your harvest",
	Long: "wecanfarm talks to a crop analysis server: log in, send photos of your\n" +
		"plants for disease detection, track their health and browse the market.\n" +
		"Run without arguments in a terminal to open the interactive app.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup check for the setup command itself.
		if cmd.Name() == "setup" {
			return nil
		}

		// First-run: profile missing → run setup wizard automatically.
		// Only do this when stdin is an interactive terminal.
		if !profile.Exists() && interactive() {
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "  Welcome to wecanfarm! Looks like this is your first time.")
			if err := runSetup(cmd, true); err != nil {
				return err
			}
		}

		activeProfile = nil
		if profile.Exists() {
			p, err := profile.Load()
			if err != nil {
				return fmt.Errorf("loading profile: %w", err)
			}
			activeProfile = p
		}

		global, err := config.LoadGlobal()
		if err != nil {
			return fmt.Errorf("loading global config: %w", err)
		}
		project, err := config.LoadProject()
		if err != nil {
			return fmt.Errorf("loading project config: %w", err)
		}
		cfg = config.Merge(global, project)
		if err := config.ApplyEnv(&cfg); err != nil {
			return fmt.Errorf("reading environment: %w", err)
		}

		// Profile values fill in config gaps; the flag wins over everything.
		if cfg.BaseURL == "" && activeProfile != nil {
			cfg.BaseURL = activeProfile.ServerURL
		}
		if serverFlag != "" {
			cfg.BaseURL = serverFlag
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if !interactive() {
			return cmd.Help()
		}
		return runApp(cmd)
	},
}

func interactive() bool {
	return term.IsTerminal(os.Stdin.Fd()) && term.IsTerminal(os.Stdout.Fd())
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// GetConfig returns the merged configuration for use by subcommands.
func GetConfig() config.Config {
	return cfg
}

// GetProfile returns the active user profile.
func GetProfile() *profile.Profile {
	return activeProfile
}

// newLogger returns the command logger, writing to the command's stderr.
func newLogger(cmd *cobra.Command) zerolog.Logger {
	return wlog.New(cfg.Environment, cmd.ErrOrStderr())
}

// newApp builds the application root from the merged configuration.
func newApp(logger zerolog.Logger) (*app.App, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("no server configured: pass --server, set %sBASE_URL or run 'wecanfarm setup'", config.EnvPrefix)
	}
	client, err := api.NewClient(api.Options{
		BaseURL:               cfg.BaseURL,
		BypassHeader:          cfg.Bypass(),
		AuthConnectTimeout:    cfg.AuthConnectTimeout,
		AuthReadTimeout:       cfg.AuthReadTimeout,
		AnalyzeConnectTimeout: cfg.AnalyzeConnectTimeout,
		AnalyzeReadTimeout:    cfg.AnalyzeReadTimeout,
		Logger:                logger,
	})
	if err != nil {
		return nil, err
	}
	return app.New(app.Options{
		Client:          client,
		Logger:          logger,
		HistoryCapacity: cfg.HistoryCapacity,
		SeedMarket:      cfg.Seed(),
	})
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "analysis server URL (overrides config and profile)")
}
