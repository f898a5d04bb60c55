package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cipherline/internal/channel"
	"cipherline/internal/domain"
	"cipherline/internal/metrics"
)

func listenCmd() *cobra.Command {
	var (
		chatID      int64
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Connect the sync channel and print decrypted events",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if metricsAddr == "" {
				metricsAddr = wire.Config.MetricsAddr
			}
			if metricsAddr != "" {
				srv := &http.Server{
					Addr:              metricsAddr,
					Handler:           metrics.Handler(wire.Registry),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Warn("metrics server", zap.Error(err))
					}
				}()
				defer srv.Shutdown(context.Background())
				logger.Info("metrics listening", zap.String("addr", metricsAddr))
			}

			ch := sess.Channel
			if chatID != 0 {
				if err := ch.SetActiveChat(ctx, domain.ChatID(chatID)); err != nil {
					return err
				}
			}
			if err := ch.Reconcile(ctx); err != nil {
				logger.Warn("initial unread counts", zap.Error(err))
			}

			done := make(chan error, 1)
			go func() { done <- ch.Run(ctx) }()
			for {
				select {
				case err := <-done:
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				case e := <-ch.Events():
					printEvent(e)
				}
			}
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat", 0, "chat to subscribe to")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func printEvent(e channel.Event) {
	switch e := e.(type) {
	case channel.StateChanged:
		fmt.Printf("* %s\n", e.State)
	case channel.TranscriptLoaded:
		fmt.Printf("* chat %s: %d messages\n", e.ChatID, len(e.Entries))
		for _, m := range e.Entries {
			printEntry(m)
		}
	case channel.MessageReceived:
		printEntry(e.Entry)
	case channel.UnreadChanged:
		for id, n := range e.Counts {
			if n > 0 {
				fmt.Printf("* chat %s: %d unread\n", id, n)
			}
		}
	case channel.PresenceChanged:
		fmt.Printf("* online: %v\n", e.Online)
	case channel.ChatRemoved:
		fmt.Printf("* removed from chat %s\n", e.ChatID)
	case channel.ChatsReloaded:
		fmt.Printf("* %d chats\n", len(e.Chats))
	}
}

func printEntry(m domain.DecryptedMessage) {
	ts := m.Message.Timestamp.Local().Format("15:04:05")
	who := m.Message.Sender.Username
	if who == "" {
		who = m.Message.Sender.ID.String()
	}
	switch {
	case m.Err != nil:
		fmt.Printf("[%s] %s: <undecryptable: %v>\n", ts, who, m.Err)
	case m.Message.Attachment != nil:
		a := m.Message.Attachment
		fmt.Printf("[%s] %s: [%s %s, %d bytes, message %d]\n", ts, who, m.Message.ContentType, a.Filename, a.SizeBytes, m.Message.ID)
	default:
		fmt.Printf("[%s] %s: %s\n", ts, who, m.Text)
	}
}
