package commands

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cipherline/internal/domain"
)

func attachCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Send or fetch encrypted attachments",
	}
	cmd.AddCommand(attachSendCmd(), attachGetCmd())
	return cmd
}

func attachSendCmd() *cobra.Command {
	var (
		chatID   int64
		mimeType string
	)
	cmd := &cobra.Command{
		Use:   "send <file>",
		Short: "Encrypt, upload and announce a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			name := filepath.Base(args[0])
			if mimeType == "" {
				mimeType = mime.TypeByExtension(filepath.Ext(name))
			}
			if mimeType == "" {
				mimeType = http.DetectContentType(data)
			}

			sess, err := openSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx := cmd.Context()
			chat, err := sess.Channel.Chat(ctx, domain.ChatID(chatID))
			if err != nil {
				return err
			}
			key, err := sess.Keys.MessageKey(ctx, chat)
			if err != nil {
				return err
			}
			att, err := sess.Files.Upload(ctx, data, name, mimeType, key)
			if err != nil {
				return err
			}
			if err := sess.Channel.SendAttachment(ctx, chat.ID, att); err != nil {
				return err
			}
			if err := flush(ctx, sess.Channel); err != nil {
				return err
			}
			fmt.Printf("uploaded %s as attachment %s\n", name, att.ID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat", 0, "chat id")
	cmd.Flags().StringVar(&mimeType, "mime", "", "MIME type (default: from extension or content)")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}

func attachGetCmd() *cobra.Command {
	var (
		chatID    int64
		messageID int64
		out       string
	)
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Download and decrypt the attachment of a message",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx := cmd.Context()
			chat, err := sess.Channel.Chat(ctx, domain.ChatID(chatID))
			if err != nil {
				return err
			}
			msgs, err := wire.Relay.FetchMessages(ctx, chat.ID)
			if err != nil {
				return err
			}
			var msg *domain.Message
			for i := range msgs {
				if msgs[i].ID == messageID {
					msg = &msgs[i]
					break
				}
			}
			if msg == nil || msg.Attachment == nil {
				return fmt.Errorf("message %d in chat %s has no attachment: %w", messageID, chat.ID, domain.ErrNotFound)
			}

			candidates := sess.Keys.AttachmentCandidates(ctx, chat, msg.Sender.ID)
			h, err := sess.Files.Download(ctx, *msg.Attachment, candidates)
			if err != nil {
				return err
			}
			defer h.Release()
			logger.Debug("attachment decrypted", zap.String("key", h.KeyLabel))

			if out == "" {
				out = filepath.Base(h.Filename)
			}
			if err := os.WriteFile(out, h.Bytes(), 0o600); err != nil {
				return err
			}
			fmt.Printf("wrote %s (%s)\n", out, h.MimeType)
			return nil
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat", 0, "chat id")
	cmd.Flags().Int64Var(&messageID, "message", 0, "message id carrying the attachment")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: original filename)")
	_ = cmd.MarkFlagRequired("chat")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}
