package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/legalsandbox/research-backend/internal/app"
	"github.com/legalsandbox/research-backend/internal/config"
	"github.com/legalsandbox/research-backend/internal/observability"
	"github.com/legalsandbox/research-backend/internal/provision"
	"github.com/legalsandbox/research-backend/internal/tools/common"
	"github.com/legalsandbox/research-backend/internal/tools/sessionctl"
	"github.com/legalsandbox/research-backend/internal/tools/ui"
)

func main() {
	root := &cobra.Command{
		Use:           "sandbox-server",
		Short:         "Session-scoped legal research sandbox backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand())
	root.AddCommand(newProvisionCommand())
	root.AddCommand(sessionctl.NewCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}
			logger, loggerProvider, err := observability.NewLogger(ctx, cfg)
			if err != nil {
				return err
			}
			runtime, err := observability.InitRuntime(ctx, cfg, logger)
			if err != nil {
				return err
			}
			runtime.LoggerProvider = loggerProvider

			a, err := app.Build(ctx, cfg, logger, runtime)
			if err != nil {
				logger.Error("startup failed", "error", err)
				return err
			}
			return a.Run(ctx)
		},
	}
}

func newProvisionCommand() *cobra.Command {
	var (
		registryPath string
		count        int
		ttl          time.Duration
		merge        bool
		ci           bool
	)
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Generate researcher sessions and write the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			var creds []provision.Credential
			generate := func(ctx context.Context) ([]string, error) {
				var err error
				creds, err = provision.Run(provision.Options{
					RegistryPath: registryPath,
					Count:        count,
					TTL:          ttl,
					Merge:        merge,
				})
				if err != nil {
					return nil, err
				}
				return []string{fmt.Sprintf("%d sessions written to %s", len(creds), registryPath)}, nil
			}

			var err error
			if ci {
				details, genErr := generate(cmd.Context())
				common.PrintCIResult(genErr == nil, "provision", details, genErr)
				err = genErr
			} else {
				_, err = ui.Run("provision sessions", generate)
			}
			if err != nil {
				return err
			}

			// Credentials are shown once and never stored in cleartext.
			for _, c := range creds {
				fmt.Fprintf(cmd.OutOrStdout(), "username=%s password=%s expires=%s\n",
					c.Username, c.Password, c.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&registryPath, "registry", "sessions.json", "path to the session registry")
	cmd.Flags().IntVar(&count, "count", 1, "number of sessions to provision")
	cmd.Flags().DurationVar(&ttl, "ttl", 72*time.Hour, "session lifetime")
	cmd.Flags().BoolVar(&merge, "merge", false, "append to an existing registry instead of replacing it")
	cmd.Flags().BoolVar(&ci, "ci", false, "non-interactive machine-readable output")
	return cmd
}
