package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cipherline/internal/domain"
)

// send --chat N <message>: encrypt under the chat key and send.
func sendCmd() *cobra.Command {
	var chatID int64
	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Encrypt and send a text message to a chat",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx := cmd.Context()
			if err := sess.Channel.Send(ctx, domain.ChatID(chatID), strings.Join(args, " ")); err != nil {
				return err
			}
			if err := flush(ctx, sess.Channel); err != nil {
				return err
			}
			fmt.Println("sent")
			return nil
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat", 0, "chat id")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}
