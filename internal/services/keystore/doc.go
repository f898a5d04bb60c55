// Package keystore owns the device keypair lifecycle: generation,
// password-wrapped persistence, unlock, portable backups and reset.
//
// The private key only ever reaches disk inside a domain.EncryptedKeyRecord.
// Generation is pure; callers publish the public key first and persist only
// once the directory accepted it.
package keystore
