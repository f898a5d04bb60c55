// Package crypto exposes the primitives used by cipherline.
//
// Contents
//
//   - Symmetric AEAD for text and byte payloads (EncryptText, DecryptText,
//     EncryptBytes, DecryptBytes). Nonces are always drawn internally.
//   - X25519 key generation and Diffie–Hellman, and the HKDF step that turns
//     a DH output into a pairwise SharedSecret (GenerateX25519, DH,
//     DeriveShared)
//   - Password key derivation with argon2id or scrypt, and password sealing of
//     secrets (DeriveWrappingKey, SealWithPassword, OpenWithPassword)
//   - JWK encoding of public keys and short fingerprints
//
// # Notes
//
// Every ciphertext is tagged with its domain.Algorithm. New data is sealed
// with ChaCha20-Poly1305; AES-256-GCM tagged payloads can still be opened.
// Authentication failures surface as domain.ErrDecryptionFailed and never
// return partial plaintext.
package crypto
