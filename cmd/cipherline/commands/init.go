package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cipherline/internal/crypto"
)

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate the device keypair, publish it and store it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return errNoPassword
			}
			has, err := wire.Keys.HasKeypair()
			if err != nil {
				return err
			}
			if has && !force {
				return fmt.Errorf("a keypair already exists; run reset first or pass --force")
			}

			kp, err := wire.Register(cmd.Context(), password)
			if err != nil {
				return err
			}
			defer kp.Wipe()
			logger.Info("keypair stored", zap.String("home", wire.Config.Home))
			fmt.Printf("Keypair created.\nFingerprint: %s\n", crypto.Fingerprint(kp.Public))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing keypair")
	return cmd
}
