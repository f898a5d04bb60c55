package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"cipherline/internal/domain"
)

const (
	// KeySize is the symmetric key length for every supported algorithm.
	KeySize = chacha20poly1305.KeySize
	// NonceSize is the 96-bit nonce length shared by both constructions.
	NonceSize = chacha20poly1305.NonceSize

	// DefaultAlgorithm seals all new ciphertexts.
	DefaultAlgorithm = domain.AlgChaCha20Poly1305
)

var (
	ErrInvalidKeySize       = errors.New("crypto: key must be 32 bytes")
	ErrUnsupportedAlgorithm = errors.New("crypto: unsupported algorithm")
)

// EncryptText seals a UTF-8 string under key.
func EncryptText(key []byte, plaintext string) (domain.Sealed, error) {
	return seal(DefaultAlgorithm, key, []byte(plaintext), nil)
}

// DecryptText opens a sealed string.
func DecryptText(key []byte, s domain.Sealed) (string, error) {
	pt, err := open(key, s, nil)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// EncryptBytes seals a raw buffer under key.
func EncryptBytes(key, plaintext []byte) (domain.Sealed, error) {
	return seal(DefaultAlgorithm, key, plaintext, nil)
}

// EncryptBytesWith seals with an explicit algorithm.
func EncryptBytesWith(algo domain.Algorithm, key, plaintext []byte) (domain.Sealed, error) {
	return seal(algo, key, plaintext, nil)
}

// DecryptBytes opens a sealed buffer.
func DecryptBytes(key []byte, s domain.Sealed) ([]byte, error) {
	return open(key, s, nil)
}

func newAEAD(algo domain.Algorithm, key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	switch algo {
	case domain.AlgChaCha20Poly1305:
		return chacha20poly1305.New(key)
	case domain.AlgAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedAlgorithm, algo)
	}
}

func seal(algo domain.Algorithm, key, plaintext, ad []byte) (domain.Sealed, error) {
	aead, err := newAEAD(algo, key)
	if err != nil {
		return domain.Sealed{}, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return domain.Sealed{}, err
	}
	return domain.Sealed{
		Ciphertext: aead.Seal(nil, nonce, plaintext, ad),
		Nonce:      nonce,
		Algo:       algo,
	}, nil
}

// open never returns partial output: any failure, including a malformed
// nonce or unknown tag, is ErrDecryptionFailed.
func open(key []byte, s domain.Sealed, ad []byte) ([]byte, error) {
	algo := s.Algo
	if algo == "" {
		algo = DefaultAlgorithm
	}
	aead, err := newAEAD(algo, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecryptionFailed, err)
	}
	if len(s.Nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce length %d", domain.ErrDecryptionFailed, len(s.Nonce))
	}
	pt, err := aead.Open(nil, s.Nonce, s.Ciphertext, ad)
	if err != nil {
		return nil, domain.ErrDecryptionFailed
	}
	return pt, nil
}
