// Command ghlmux serves GoHighLevel tools to many tenants from one process.
//
// Usage:
//
//	ghlmux serve                 HTTP: admin API, MCP over streamable HTTP, metrics
//	ghlmux stdio --tenant acme   MCP over stdin/stdout for one tenant
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/ghlmux/pkg/config"
	"github.com/dmitrymomot/ghlmux/pkg/httpserver"
	"github.com/dmitrymomot/ghlmux/pkg/logger"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:           "ghlmux",
		Short:         "Multi-tenant GoHighLevel tool server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Load variables from these .env files first")

	load := func() (appConfig, error) {
		return loadConfig(config.WithDotenv(envFiles...))
	}

	root.AddCommand(newServeCmd(load), newStdioCmd(load), &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	})
	return root
}

func newServeCmd(load func() (appConfig, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin API and MCP over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			a.log.Info("starting ghlmux", logger.Component("http"))
			srv := httpserver.New(cfg.HTTP, httpserver.WithLogger(a.log))
			return srv.Run(ctx, a.router())
		},
	}
}

func newStdioCmd(load func() (appConfig, error)) *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "Serve MCP on stdin/stdout for one tenant",
		Long: `Serve MCP on stdin/stdout. The tenant is taken from --tenant, then
GHL_TENANT_ID, then the default tenant when fallback is enabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			rc, err := a.tenantForCLI(ctx, tenantID)
			if err != nil {
				return err
			}
			return a.tools.RunStdio(ctx, rc)
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant id")
	return cmd
}
