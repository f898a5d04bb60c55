package types

import "cipherline/internal/util/memzero"

// KeyAlgorithm names the key-agreement scheme of device keypairs.
const KeyAlgorithm = "X25519"

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// Keypair is the device identity. Private is only ever held in memory.
type Keypair struct {
	Private X25519Private
	Public  X25519Public
}

// Wipe zeroes the private half.
func (k *Keypair) Wipe() { memzero.Zero(k.Private[:]) }

// PublicKeyJWK is the JWK-style serialisation of a public key
// (RFC 8037 OKP form).
type PublicKeyJWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
}

// SharedSecret is the symmetric key derived from a pairwise key agreement.
type SharedSecret [32]byte

// Slice returns the secret as a []byte.
func (s SharedSecret) Slice() []byte { return s[:] }
