package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cipherline/internal/app"
	"cipherline/internal/devrelay"
	"cipherline/internal/domain"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		addr     string
		logLevel string
		users    []string
	)
	cmd := &cobra.Command{
		Use:          "relay",
		Short:        "In-memory development relay for cipherline",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := app.NewLogger(logLevel)
			if err != nil {
				return err
			}
			defer log.Sync()

			state := devrelay.NewState(log)
			for _, entry := range users {
				id, name, err := parseUser(entry)
				if err != nil {
					return err
				}
				tok := state.AddUser(id, name)
				fmt.Printf("user %d (%s) token=%s\n", id, name, tok)
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           devrelay.NewServer(state, log).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			log.Info("relay listening", zap.String("addr", addr))

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}
			state.Hub().Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug|info|warn|error")
	cmd.Flags().StringSliceVar(&users, "user", nil, "pre-provision a user as id:name (repeatable)")
	return cmd
}

func parseUser(s string) (domain.UserID, string, error) {
	idPart, name, ok := strings.Cut(s, ":")
	if !ok || name == "" {
		return 0, "", fmt.Errorf("bad --user %q, want id:name", s)
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", fmt.Errorf("bad user id in %q", s)
	}
	return domain.UserID(id), name, nil
}
