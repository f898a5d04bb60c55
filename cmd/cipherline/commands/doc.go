// Package commands defines the cipherline CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - init           Generate the device keypair, publish it and store it
//   - fingerprint    Print the public key fingerprint
//   - backup export  Write a password-protected backup document
//   - backup import  Restore the keypair from a backup document
//   - reset          Destroy the local key record
//   - listen         Connect the sync channel and print events
//   - send           Encrypt and send a text message to a chat
//   - attach send    Encrypt, upload and announce a file
//   - attach get     Download and decrypt an attachment
//
// # Implementation
//
// The root command loads app.Config through viper (flags, CIPHERLINE_*
// environment, ~/.cipherline/config.yaml), builds the zap logger and the
// app.Wire before any subcommand runs. Networked commands unlock the keypair
// into an app.Session and close it before exiting.
package commands
