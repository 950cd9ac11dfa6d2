package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/app"
	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/config"
	infraredis "github.com/Sixtor24/Spanish-Blitz-sub000/internal/infra/redis"
	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/realtime"
	transport "github.com/Sixtor24/Spanish-Blitz-sub000/internal/transport/http"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the blitz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	hub := realtime.NewHub()
	var notifier app.Notifier = hub
	if b.redis != nil {
		relay := infraredis.NewRelay(b.redis, cfg.Redis.Channel, hub).
			WithPublishTimeout(config.TTLDuration(cfg.Redis.PublishTimeout, infraredis.DefaultPublishTimeout))
		notifier = relay
		go func() {
			if err := relay.Run(ctx, hub); err != nil {
				log.Printf("refresh relay stopped: %v", err)
			}
		}()
	}

	hosts, teachers := hostRoles(cfg)
	coord := app.NewCoordinator(b.store, b.decks, app.NewRoleAuthorizer(hosts, teachers), notifier, coordinatorOptions(cfg))
	go coord.RunExpirySweep(ctx, config.TTLDuration(cfg.Blitz.SweepInterval, 15*time.Second))

	auth := transport.NewAuthenticator(cfg.Auth.JWTSecret)
	wsHandler := transport.NewWSHandler(hub, coord, auth, transport.WSOptions{
		SubscriberBuffer: cfg.Realtime.SubscriberBuffer,
		WriteTimeout:     config.TTLDuration(cfg.Realtime.WriteTimeout, 10*time.Second),
		PingInterval:     config.TTLDuration(cfg.Realtime.PingInterval, 25*time.Second),
	})
	router := transport.NewRouter(transport.NewHandler(coord), wsHandler, auth)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.TTLDuration(cfg.Server.WriteTimeout, 15*time.Second),
	}

	go func() {
		log.Printf("starting blitz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
