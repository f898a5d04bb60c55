package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherline/internal/crypto"
)

func fingerprintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the public key fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return errNoPassword
			}
			kp, err := wire.Keys.Unlock(password)
			if err != nil {
				return err
			}
			defer kp.Wipe()
			fmt.Printf("Fingerprint: %s\n", crypto.Fingerprint(kp.Public))
			return nil
		},
	}
	return cmd
}
