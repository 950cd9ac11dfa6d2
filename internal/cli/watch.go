package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/clientsync"
	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/config"
	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
	transport "github.com/Sixtor24/Spanish-Blitz-sub000/internal/transport/http"
	"github.com/spf13/cobra"
)

type watchFlags struct {
	server    string
	code      string
	sessionID string
	token     string
	userID    string
	name      string
	role      string
}

// NewWatchCmd follows a session from the terminal the way a browser client does.
func NewWatchCmd(configPath *string) *cobra.Command {
	f := watchFlags{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Join a session and print its live scoreboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if f.code == "" && f.sessionID == "" {
				return fmt.Errorf("either --code or --session is required")
			}

			token := f.token
			if token == "" {
				if f.userID == "" {
					return fmt.Errorf("--token or --user is required")
				}
				// local development: sign with the server secret
				token, err = transport.IssueToken(cfg.Auth.JWTSecret, domain.User{ID: f.userID, Name: f.name, Role: f.role}, 12*time.Hour)
				if err != nil {
					return err
				}
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runWatch(ctx, cmd.OutOrStdout(), f, token, config.TTLDuration(cfg.Realtime.PollInterval, 5*time.Second))
		},
	}
	cmd.Flags().StringVar(&f.server, "server", "http://localhost:8080", "blitz server base URL")
	cmd.Flags().StringVar(&f.code, "code", "", "join code")
	cmd.Flags().StringVar(&f.sessionID, "session", "", "session id (skips joining)")
	cmd.Flags().StringVar(&f.token, "token", "", "bearer token")
	cmd.Flags().StringVar(&f.userID, "user", "", "user id to sign a development token for")
	cmd.Flags().StringVar(&f.name, "name", "", "display name")
	cmd.Flags().StringVar(&f.role, "role", "free", "role claim for the development token")
	return cmd
}

func runWatch(ctx context.Context, out io.Writer, f watchFlags, token string, poll time.Duration) error {
	client := clientsync.NewClient(f.server, token)

	sessionID := f.sessionID
	if f.code != "" {
		joined, err := client.Join(ctx, f.code, f.name)
		if err != nil {
			return err
		}
		sessionID = joined.State.Session.ID
		fmt.Fprintf(out, "joined %s as player %s\n", joined.State.Session.Code, joined.PlayerID)
	}

	events := make(chan domain.RefreshEvent, 1)
	go func() {
		err := clientsync.NewSocket(client.SocketURL(), token).Stream(ctx, sessionID, events)
		if err != nil {
			log.Printf("realtime stream ended: %v", err)
		}
	}()

	syncer := clientsync.NewSyncer(client, sessionID, clientsync.Options{
		PollInterval: poll,
		OnChange:     func(state domain.State) { printScoreboard(out, state) },
	})
	return syncer.Run(ctx, events)
}

func printScoreboard(out io.Writer, state domain.State) {
	s := state.Session
	fmt.Fprintf(out, "\n[%s] session %s  status=%s  questions=%d", time.Now().Format("15:04:05"), s.Code, s.Status, state.TotalQuestions)
	if state.RemainingSeconds != nil {
		fmt.Fprintf(out, "  remaining=%ds", *state.RemainingSeconds)
	}
	fmt.Fprintln(out)
	for _, p := range state.Players {
		marker := " "
		if p.ID == state.MyPlayerID {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %2d. %-20s %4d pts  %d/%d  %s\n", marker, p.Rank, p.DisplayName, p.Score, p.AnsweredCount, state.TotalQuestions, p.State)
	}
}
