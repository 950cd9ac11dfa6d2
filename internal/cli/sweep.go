package cli

import (
	"fmt"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/app"
	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/config"
	infraredis "github.com/Sixtor24/Spanish-Blitz-sub000/internal/infra/redis"
	"github.com/spf13/cobra"
)

// NewSweepCmd completes every active session whose time limit has passed.
// Meant for cron-style runs next to servers started with the sweep disabled.
func NewSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Complete expired sessions once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("sweep needs postgres: in-memory sessions live inside the server process")
			}

			b, err := openBackends(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			var notifier app.Notifier
			if b.redis != nil {
				notifier = infraredis.NewRelay(b.redis, cfg.Redis.Channel, nil)
			}
			hosts, teachers := hostRoles(cfg)
			coord := app.NewCoordinator(b.store, b.decks, app.NewRoleAuthorizer(hosts, teachers), notifier, coordinatorOptions(cfg))

			n, err := coord.ExpireDue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "completed %d expired sessions\n", n)
			return nil
		},
	}
}
