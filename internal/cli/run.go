package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/scaffold/core"
	"github.com/soyeahso/scaffold/internal/version"
)

func newRunCmd() *cobra.Command {
	var (
		port     int
		bind     string
		noServer bool
		noDB     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scaffold host until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := logLevel
			if level == "" {
				level = "info"
			}

			opts := []core.Option{
				core.WithVersion(version.Version),
				core.WithLogLevel(level),
				core.WithClient(),
			}
			if cfgFile != "" {
				opts = append(opts, core.WithConfigPath(cfgFile))
			}
			if !noServer {
				opts = append(opts, core.WithServer())
			}
			if !noDB {
				opts = append(opts, core.WithDatabase())
			}

			// Flag overrides win over the config file.
			if port != 0 {
				opts = append(opts, core.WithConfigValue("server.port", port))
			}
			if bind != "" {
				opts = append(opts, core.WithConfigValue("server.bind", bind))
			}

			sys, err := core.New(appName, opts...)
			if err != nil {
				return err
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := sys.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return sys.Close(shutdownCtx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")
	cmd.Flags().BoolVar(&noServer, "no-server", false, "run without the HTTP server")
	cmd.Flags().BoolVar(&noDB, "no-db", false, "run without the database")

	return cmd
}
