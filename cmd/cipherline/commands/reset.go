package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Destroy the local key record",
		Long: "Destroy the local key record. Messages encrypted to this key can no " +
			"longer be read on this device unless a backup is imported.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset without --yes")
			}
			if err := wire.Keys.Reset(); err != nil {
				return err
			}
			fmt.Println("Key record removed.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm destruction of the local key record")
	return cmd
}
