package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"cipherline/internal/app"
	"cipherline/internal/channel"
)

var (
	v        = viper.New()
	wire     *app.Wire
	logger   = zap.NewNop()
	password string
)

var errNoPassword = errors.New("password required (-p or CIPHERLINE_PASSWORD)")

func Execute() error {
	root := &cobra.Command{
		Use:           "cipherline",
		Short:         "End-to-end encrypted chat client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(v)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
				return err
			}
			if logger, err = app.NewLogger(cfg.LogLevel); err != nil {
				return err
			}
			if password == "" {
				password = os.Getenv("CIPHERLINE_PASSWORD")
			}
			wire, err = app.NewWire(cfg, logger)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	pf := root.PersistentFlags()
	pf.String("home", "", "config dir (default ~/.cipherline)")
	pf.String("server", "", "relay base URL (e.g. http://127.0.0.1:8080)")
	pf.String("token", "", "bearer token for the relay")
	pf.Int64("user", 0, "your user id on the relay")
	pf.String("log-level", "info", "debug|info|warn|error")
	pf.String("kdf", "", "password KDF for new key records: argon2id|scrypt")
	pf.StringVarP(&password, "password", "p", "", "password protecting the device key")
	for key, flag := range map[string]string{
		"home":      "home",
		"server":    "server",
		"token":     "token",
		"user_id":   "user",
		"log_level": "log-level",
		"kdf":       "kdf",
	} {
		if err := v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			return err
		}
	}

	root.AddCommand(initCmd(), fingerprintCmd(), backupCmd(), resetCmd(),
		listenCmd(), sendCmd(), attachCmd())
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	return err
}

func openSession() (*app.Session, error) {
	if password == "" {
		return nil, errNoPassword
	}
	return wire.OpenSession(password)
}

// flush runs the channel until frames queued before Run have been written,
// then disconnects.
func flush(ctx context.Context, ch *channel.Channel) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx) }()
	for {
		select {
		case err := <-done:
			if err == nil || errors.Is(err, context.Canceled) {
				return fmt.Errorf("channel closed before frames were sent")
			}
			return err
		case e := <-ch.Events():
			if sc, ok := e.(channel.StateChanged); ok && sc.State == channel.Open {
				cancel()
				<-done
				return nil
			}
		}
	}
}
