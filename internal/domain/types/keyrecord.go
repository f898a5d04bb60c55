package types

import "time"

// KDF names.
const (
	KDFArgon2id = "argon2id"
	KDFScrypt   = "scrypt"
)

// KDFParams records how a wrapping key was derived from a password, so the
// record can be reopened after defaults change.
type KDFParams struct {
	Name string `json:"name"`

	// argon2id
	Time      uint32 `json:"time,omitempty"`
	MemoryKiB uint32 `json:"memory_kib,omitempty"`
	Threads   uint8  `json:"threads,omitempty"`

	// scrypt
	N int `json:"n,omitempty"`
	R int `json:"r,omitempty"`
	P int `json:"p,omitempty"`
}

// EncryptedKeyRecord is the only durable form of the private key.
type EncryptedKeyRecord struct {
	Version    int          `json:"v"`
	Ciphertext []byte       `json:"ciphertext"`
	Nonce      []byte       `json:"nonce"`
	Salt       []byte       `json:"salt"`
	Algo       Algorithm    `json:"algo"`
	KDF        KDFParams    `json:"kdf"`
	PublicKey  PublicKeyJWK `json:"public_key"`
}

// BackupKind marks a JSON document as a key backup.
const BackupKind = "cipherline-key-backup"

// BackupDocument is the portable, self-contained key backup.
type BackupDocument struct {
	Kind      string             `json:"kind"`
	Version   int                `json:"v"`
	CreatedAt time.Time          `json:"created_at"`
	Record    EncryptedKeyRecord `json:"record"`
}
