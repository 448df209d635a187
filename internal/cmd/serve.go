package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/storefront/internal/health"
	"github.com/felixgeelhaar/storefront/internal/metrics"
	"github.com/felixgeelhaar/storefront/internal/server"
	"github.com/felixgeelhaar/storefront/internal/version"
	"github.com/felixgeelhaar/storefront/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the storefront web front end",
		Long: `Run the server-rendered storefront. Every browser visitor gets a session
store of its own, persisted under the configured storage driver. Use the
redis driver when running more than one replica.

Besides the pages the server exposes:
  /metrics        Prometheus metrics
  /health/live    liveness probe
  /health/ready   readiness probe (backend API and session storage)
  /health/startup startup probe
  /healthz        readiness, for older tooling

The server drains connections on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if address != "" {
				cfg.Server.Address = address
			}
			info := version.GetInfo()

			registry, m := metrics.NewRegistry()

			backend, err := a.openStorage()
			if err != nil {
				return err
			}
			publisher, err := a.openEvents()
			if err != nil {
				return err
			}
			gw, err := a.gateway(m)
			if err != nil {
				return err
			}

			front, err := web.New(web.Options{
				Gateway:   gw,
				Storage:   backend,
				Namespace: cfg.Storage.Namespace,
				Logger:    a.logger,
				Metrics:   m,
				Events:    publisher,
				Config: web.Config{
					SignInPath:        cfg.Guard.SignInPath,
					FallbackPath:      cfg.Guard.FallbackPath,
					RedirectURI:       cfg.OAuth.RedirectURI,
					DefaultRole:       cfg.DefaultRole(),
					SecureCookies:     cfg.Server.SecureCookies,
					VisitorTTL:        cfg.Server.VisitorTTL,
					MaxVisitors:       cfg.Server.MaxVisitors,
					LoginRate:         cfg.Server.LoginRate,
					LoginBurst:        cfg.Server.LoginBurst,
					AddressLoginRate:  cfg.Server.AddressLoginRate,
					AddressLoginBurst: cfg.Server.AddressLoginBurst,
					InitTimeout:       cfg.Backend.Timeout,
				},
			})
			if err != nil {
				return err
			}

			probes := health.NewProbeManager(info.Version)
			probes.WithTimeout(cfg.Backend.Timeout)
			probes.AddChecker(health.NewBackendChecker(gw, gw.BaseURL()))
			if pinger, ok := backend.(health.Pinger); ok {
				probes.AddChecker(health.NewStorageChecker(pinger, cfg.Storage.Driver))
			}

			srv := server.NewServer(server.Options{
				App:      front,
				Probes:   probes,
				Gatherer: registry,
				Logger:   a.logger,
			}, server.Config{
				Address:         cfg.Server.Address,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
				ReadTimeout:     cfg.Server.ReadTimeout,
				WriteTimeout:    cfg.Server.WriteTimeout,
				IdleTimeout:     cfg.Server.IdleTimeout,
			})

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s listening on %s (backend %s)\n",
				titleStyle.Render("storefront"), info.Version, cfg.Server.Address, gw.BaseURL())
			return srv.Serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "listen address (default server.address)")
	return cmd
}
