package commands

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	portal "github.com/goliatone/go-auth-portal"
	"github.com/goliatone/go-auth-portal/activitymap"
	"github.com/goliatone/go-auth-portal/idp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 5 * time.Second

type serveOptions struct {
	identity string
	withIDP  bool
	addr     string
	viewsDir string
}

func (c *cli) serveCmd() *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the login and registration front end",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.identity == "" {
				opts.identity = c.cfg.Identity.Backend
			}
			if opts.addr == "" {
				opts.addr = c.cfg.Server.Addr
			}
			if opts.viewsDir == "" {
				opts.viewsDir = c.cfg.Server.ViewsDir
			}
			return c.serve(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.identity, "identity", "", "identity backend: http, kratos or local")
	cmd.Flags().BoolVar(&opts.withIDP, "with-idp", false, "also run the development identity provider")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address")
	cmd.Flags().StringVar(&opts.viewsDir, "views", "", "load templates from this directory instead of the embedded ones")
	return cmd
}

func (c *cli) serve(ctx context.Context, opts serveOptions) error {
	logger := c.log("portal")

	api, closeIdentity, err := c.newIdentity(ctx, opts.identity)
	if err != nil {
		return err
	}
	defer closeIdentity()

	drafts, closeDrafts, err := c.newDraftStore(ctx)
	if err != nil {
		return err
	}
	defer closeDrafts()

	auther := portal.NewHTTPAuthenticator(api, c.cfg).
		WithLogger(logger).
		WithActivitySink(activitymap.LogSink(c.log("activity")))

	app := portal.NewApp(auther, portal.NewViewEngine(opts.viewsDir))

	controllerOpts := []portal.AuthControllerOption{
		portal.WithDebug(c.cfg.Debug),
		portal.WithControllerLogger(logger),
		portal.WithDraftStore(drafts),
		portal.WithCSRF(c.cfg.Server.CSRF),
		portal.WithWizardOptions(portal.WithMaxImageBytes(c.cfg.Wizard.MaxImageBytes)),
	}

	if c.cfg.RateLimit.PerMinute > 0 {
		limiter := portal.NewLoginRateLimiter(rate.Limit(c.cfg.RateLimit.PerMinute/60), c.cfg.RateLimit.Burst)
		limiter.StartCleanup(time.Minute)
		defer limiter.Close()
		controllerOpts = append(controllerOpts, portal.WithLoginRateLimiter(limiter))
	}

	portal.RegisterAuthRoutes(app, auther, controllerOpts...)

	var idpApp *fiber.App
	if opts.withIDP {
		svc, db, err := c.newIDPService(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		idpApp = idp.NewApp(svc)
	}

	g, gctx := errgroup.WithContext(ctx)

	listen(gctx, g, app, opts.addr)
	logger.Info("portal listening", "addr", opts.addr, "identity", opts.identity)

	if idpApp != nil {
		listen(gctx, g, idpApp, c.cfg.IDP.Addr)
		c.log("idp").Info("identity provider listening", "addr", c.cfg.IDP.Addr)
	}

	if memory, ok := drafts.(*portal.MemoryDraftStore); ok {
		g.Go(func() error {
			sweepDrafts(gctx, memory, time.Minute, logger)
			return nil
		})
	}

	return g.Wait()
}

// listen runs app on addr inside g and shuts it down once ctx is done.
func listen(ctx context.Context, g *errgroup.Group, app *fiber.App, addr string) {
	g.Go(func() error {
		return app.Listen(addr)
	})
	g.Go(func() error {
		<-ctx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})
}

func sweepDrafts(ctx context.Context, store *portal.MemoryDraftStore, every time.Duration, logger portal.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Sweep(); n > 0 {
				logger.Debug("expired drafts removed", "count", n)
			}
		}
	}
}
