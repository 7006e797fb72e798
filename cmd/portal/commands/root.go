// Package commands implements the portal CLI: the web front end, the
// development identity provider and a headless client.
package commands

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/goliatone/go-auth-portal/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	cfgFile string
	envFile string
	home    string
	verbose bool
}

// cli carries what every command needs once the config is loaded.
type cli struct {
	opts   rootOptions
	cfg    *config.Config
	logger *slog.Logger
}

// Execute runs the root command with ctx, cancelled on SIGINT and SIGTERM.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "portal",
		Short: "Authentication portal and development identity provider",
		Long: `portal serves a login and registration front end in front of an identity
service, and ships a small identity provider for local development.

Example usage:
  portal serve --with-idp        # front end on :8080, provider on :8081
  portal serve --identity local  # provider embedded in the front end
  portal register --email ...    # headless registration wizard
  portal whoami`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init(cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.opts.cfgFile, "config", "", "YAML config file")
	flags.StringVar(&c.opts.envFile, "env-file", ".env", "dotenv file, ignored when missing")
	flags.StringVar(&c.opts.home, "home", "", "directory for the client session token (default: user config dir)")
	flags.BoolVarP(&c.opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		c.serveCmd(),
		c.idpCmd(),
		c.loginCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.registerCmd(),
	)
	return root
}

func (c *cli) init(stderr io.Writer) error {
	cfg, err := config.Load(c.opts.cfgFile, c.opts.envFile)
	if err != nil {
		return err
	}
	c.cfg = cfg

	level := slog.LevelInfo
	if c.opts.verbose || cfg.Debug {
		level = slog.LevelDebug
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	c.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	return nil
}

func (c *cli) log(component string) *slog.Logger {
	return c.logger.With("component", component)
}
