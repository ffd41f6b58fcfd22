package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pribylovaa/go-workconnect/internal/app"
	"github.com/pribylovaa/go-workconnect/internal/config"
)

// cli — общее состояние команд: конфиг и собранный клиент.
type cli struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log *slog.Logger
	app *app.App
}

func newRootCmd() (*cobra.Command, *cli) {
	c := &cli{}

	root := &cobra.Command{
		Use:           "workconnect",
		Short:         "WorkConnect account client",
		Long:          "Sign up, log in and call the WorkConnect REST API with a persisted session.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		c.loginCmd(),
		c.signupCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.callCmd(),
	)

	return root, c
}

func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg

	c.log = setupLogger(cfg.Env, c.logLevel, cmd.ErrOrStderr())
	slog.SetDefault(c.log)

	a, err := app.New(cmd.Context(), *cfg, c.log, app.Options{})
	if err != nil {
		return fmt.Errorf("init client: %w", err)
	}
	c.app = a

	c.log.Debug("client_ready",
		slog.String("base_url", cfg.API.BaseURL),
		slog.String("store", cfg.Store.Kind),
	)

	return nil
}

func (c *cli) logger() *slog.Logger {
	if c.log == nil {
		return slog.Default()
	}
	return c.log
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}

	err := c.app.Close()
	c.app = nil

	return err
}
