// Package store provides file-based persistence for cipherline.
//
// The only durable secret is the password-wrapped keypair
// (domain.EncryptedKeyRecord), kept as JSON in keypair.json under the
// configured home directory. Writes go through a temp file and rename, and
// files are created with 0600 permissions.
//
// Group keys, pairwise secrets and transcripts are never written here; they
// live in memory for the lifetime of a session.
package store
