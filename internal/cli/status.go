package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/scaffold/config"
	"github.com/soyeahso/scaffold/internal/version"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show scaffold status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Scaffold %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Printf("Config:  %s\n", paths.Config)
			fmt.Printf("Data:    %s\n", paths.Data)
			fmt.Printf("Logs:    %s\n", paths.Logs)
			fmt.Println()

			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("Config:  not found (will be created on first run)")
				} else {
					fmt.Printf("Config:  error loading: %v\n", err)
				}
				return nil
			}
			cfg := config.NewConfig(raw)

			fmt.Printf("Server:   port=%d bind=%s events=%v\n",
				cfg.Int("server.port", 8080),
				cfg.String("server.bind", "loopback"),
				cfg.Bool("server.events", true))
			fmt.Printf("Database: path=%s sync=%s\n",
				cfg.String("database.path", "(default)"),
				cfg.String("database.sync", "sync"))
			fmt.Printf("Logging:  level=%s\n", cfg.String("logging.level", "info"))

			if disabled := cfg.Strings("plugins.disabled"); len(disabled) > 0 {
				fmt.Printf("Disabled: %s\n", strings.Join(disabled, ", "))
			}

			return nil
		},
	}
}
