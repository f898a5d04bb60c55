package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"cipherline/internal/crypto"
)

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export or import a password-protected key backup",
	}
	cmd.AddCommand(backupExportCmd(), backupImportCmd())
	return cmd
}

func backupExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a backup document (re-wrapped under a fresh salt)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return errNoPassword
			}
			doc, err := wire.Keys.ExportBackup(password)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = os.Stdout.Write(append(doc, '\n'))
				return err
			}
			if err := os.WriteFile(out, doc, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "backup written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file (- for stdout)")
	return cmd
}

func backupImportCmd() *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Restore the keypair from a backup document",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return errNoPassword
			}
			var (
				doc []byte
				err error
			)
			if in == "" || in == "-" {
				doc, err = io.ReadAll(os.Stdin)
			} else {
				doc, err = os.ReadFile(in)
			}
			if err != nil {
				return err
			}
			kp, err := wire.Keys.ImportBackup(password, doc)
			if err != nil {
				return err
			}
			defer kp.Wipe()
			fmt.Printf("Keypair restored.\nFingerprint: %s\n", crypto.Fingerprint(kp.Public))
			return nil
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "-", "backup file (- for stdin)")
	return cmd
}
