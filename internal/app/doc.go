// Package app wires application dependencies for the CLI.
//
// LoadConfig resolves Config from flags, CIPHERLINE_* environment variables
// and an optional config.yaml in the home directory. NewWire builds the
// stores, relay client and metrics from it; OpenSession unlocks the device
// keypair and builds the key services and sync channel on top.
package app
