package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"cipherline/internal/domain"
	"cipherline/internal/util/memzero"
)

const sharedSecretInfo = "cipherline/pairwise/v1"

// GenerateX25519 returns a fresh Curve25519 key pair.
// The private key is clamped per RFC 7748.
func GenerateX25519() (priv domain.X25519Private, pub domain.X25519Public, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return
	}
	clamp(&priv)
	pub, err = PublicFromPrivate(priv)
	return
}

// PublicFromPrivate recomputes the public half of priv.
func PublicFromPrivate(priv domain.X25519Private) (pub domain.X25519Public, err error) {
	pb, err := curve25519.X25519(priv.Slice(), curve25519.Basepoint)
	if err != nil {
		return pub, err
	}
	copy(pub[:], pb)
	return pub, nil
}

// DH computes X25519 Diffie–Hellman. Low-order peer keys are rejected.
func DH(priv domain.X25519Private, pub domain.X25519Public) (out [32]byte, err error) {
	secret, err := curve25519.X25519(priv.Slice(), pub.Slice())
	if err != nil {
		return out, err
	}
	copy(out[:], secret)
	memzero.Zero(secret)
	return out, nil
}

// DeriveShared runs DH and expands the result with HKDF-SHA256. The output
// depends only on the unordered pair of keys, so both sides agree.
func DeriveShared(priv domain.X25519Private, peer domain.X25519Public) (domain.SharedSecret, error) {
	var out domain.SharedSecret
	dh, err := DH(priv, peer)
	if err != nil {
		return out, err
	}
	defer memzero.Zero(dh[:])

	r := hkdf.New(sha256.New, dh[:], nil, []byte(sharedSecretInfo))
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return domain.SharedSecret{}, err
	}
	return out, nil
}

func clamp(k *domain.X25519Private) {
	kb := k[:]
	kb[0] &= 248
	kb[31] &= 127
	kb[31] |= 64
}
