package types

// Algorithm tags every ciphertext with the AEAD construction that produced it.
type Algorithm string

const (
	// AlgChaCha20Poly1305 is the construction used for all new ciphertexts.
	AlgChaCha20Poly1305 Algorithm = "CHACHA20-POLY1305"
	// AlgAESGCM is accepted for decryption of older payloads.
	AlgAESGCM Algorithm = "AES-256-GCM"
)

// Sealed is an AEAD output together with its nonce and algorithm tag.
type Sealed struct {
	Ciphertext []byte    `json:"ciphertext"`
	Nonce      []byte    `json:"nonce"`
	Algo       Algorithm `json:"algo"`
}
