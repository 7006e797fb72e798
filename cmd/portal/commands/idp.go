package commands

import (
	"context"

	"github.com/goliatone/go-auth-portal/idp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func (c *cli) idpCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "idp",
		Short: "Run the development identity provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = c.cfg.IDP.Addr
			}
			return c.runIDP(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address")
	return cmd
}

func (c *cli) runIDP(ctx context.Context, addr string) error {
	svc, db, err := c.newIDPService(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	g, gctx := errgroup.WithContext(ctx)
	listen(gctx, g, idp.NewApp(svc), addr)
	c.log("idp").Info("identity provider listening", "addr", addr, "dsn", c.cfg.IDP.DSN)

	return g.Wait()
}
