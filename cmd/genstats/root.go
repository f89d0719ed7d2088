package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/genstats/client/internal/config"
	"github.com/genstats/client/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	baseURL    string
	session    string
	logLevel   string
	envFile    string
}

// cli carries state shared by every subcommand.
type cli struct {
	flags  rootFlags
	cfg    *config.AppConfig
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "genstats",
		Short: "Upload datasets and request statistics and AI insights",
		Long: "genstats drives one dataset session against the analysis backend:\n" +
			"upload a CSV file, fetch its summary and ask free-text questions about it.",
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init()
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&c.flags.configPath, "config", config.DefaultFileName, "Path to the YAML config file (created if missing)")
	f.StringVar(&c.flags.baseURL, "base-url", "", "Backend base URL (overrides config)")
	f.StringVar(&c.flags.session, "session", "default", "Name of the stored session")
	f.StringVar(&c.flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&c.flags.envFile, "env-file", ".env", "Environment file loaded before the config")

	root.AddCommand(
		newUploadCmd(c),
		newSummaryCmd(c),
		newAskCmd(c),
		newStatusCmd(c),
		newHistoryCmd(c),
		newResetCmd(c),
		newShellCmd(c),
		newStubCmd(c),
	)
	return root
}

// init loads the environment file and config, then sets up logging.
func (c *cli) init() error {
	if c.flags.envFile != "" {
		if err := godotenv.Load(c.flags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", c.flags.envFile, err)
		}
	}

	cfg, err := config.LoadConfig(c.flags.configPath)
	if err != nil {
		return err
	}
	if c.flags.baseURL != "" {
		cfg.Backend.BaseURL = c.flags.baseURL
	}
	if c.flags.logLevel != "" {
		cfg.Advanced.LogLevel = c.flags.logLevel
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	c.cfg = cfg
	c.logger = logging.Init(logging.ParseLevel(cfg.Advanced.LogLevel), cfg.Advanced.LogFormat, nil)
	return nil
}
