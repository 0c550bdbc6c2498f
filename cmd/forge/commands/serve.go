package commands

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/infraforge/pkg/policy"
	"github.com/openfroyo/infraforge/pkg/server"
)

func newServeCommand() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the generation API over HTTP",
		Long: `Start the HTTP API.

Endpoints:
  POST /api/v1/generate  run one workflow for {"prompt": "..."}
  POST /api/v1/scan      scan {"terraform_code": "..."} against the policies
  GET  /api/v1/policies  list the loaded policies
  GET  /health           liveness and run slots
  GET  /metrics          Prometheus metrics

With policy.watch enabled, custom policies are reloaded when their files change.`,
		Example: `  # Serve on the configured address
  forge serve

  # Override the address
  forge serve --address 127.0.0.1:9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			if address != "" {
				a.cfg.Server.Address = address
			}

			policies, err := a.newPolicyEngine(ctx)
			if err != nil {
				return err
			}
			engine, err := a.newWorkflowEngine(ctx, policies)
			if err != nil {
				return err
			}

			if a.cfg.Policy.Watch && len(a.cfg.Policy.Paths) > 0 {
				loader := policy.NewLoader(a.logger)
				err := loader.Watch(ctx, a.cfg.Policy.Paths, func(loaded []policy.Policy) error {
					return policies.ReplaceCustomPolicies(ctx, loaded)
				})
				if err != nil {
					return err
				}
				defer func() {
					if err := loader.StopWatching(); err != nil {
						log.Warn().Err(err).Msg("Failed to stop policy watcher")
					}
				}()
			}

			srv, err := server.New(engine, a.cfg.Server, a.logger,
				server.WithScanner(policy.NewScanner(policies, a.logger)),
				server.WithPolicies(policies),
				server.WithTelemetry(a.telemetry),
			)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return <-errCh
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "listen address (overrides server.address)")

	return cmd
}
