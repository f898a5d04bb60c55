// Package peerkeys publishes this device's public key, fetches peers' keys
// from the directory and derives pairwise shared secrets.
//
// Secrets are cached per peer together with the public key they were
// derived from. A peer publishing a new key yields a fresh secret the next
// time DeriveShared sees it.
package peerkeys
