package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/scrypt"

	"cipherline/internal/domain"
	"cipherline/internal/util/memzero"
)

// SaltSize is the length of password salts.
const SaltSize = 16

// ErrBadKDFParams reports KDF parameters that are malformed or exceed the
// cost limits below. Records read from disk or a backup are untrusted.
var ErrBadKDFParams = errors.New("crypto: invalid kdf parameters")

// Upper bounds on password KDF cost.
const (
	MaxArgonTime      = 16
	MaxArgonMemoryKiB = 1 << 20 // 1 GiB
	MaxArgonThreads   = 64
	MaxScryptN        = 1 << 20
	MaxScryptR        = 32
	MaxScryptP        = 16
	maxScryptMemory   = 1 << 30 // 128*N*r bytes
)

// DefaultKDFParams returns the argon2id settings used for new records.
func DefaultKDFParams() domain.KDFParams {
	return domain.KDFParams{
		Name:      domain.KDFArgon2id,
		Time:      3,
		MemoryKiB: 64 * 1024,
		Threads:   4,
	}
}

// ScryptKDFParams returns scrypt settings matching the legacy keystore format.
func ScryptKDFParams() domain.KDFParams {
	return domain.KDFParams{Name: domain.KDFScrypt, N: 1 << 15, R: 8, P: 1}
}

// DeriveWrappingKey derives a 32-byte key-encryption key from password.
func DeriveWrappingKey(password string, salt []byte, p domain.KDFParams) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("%w: salt size %d", ErrBadKDFParams, len(salt))
	}
	if err := CheckKDFParams(p); err != nil {
		return nil, err
	}
	switch p.Name {
	case domain.KDFArgon2id:
		return argon2.IDKey([]byte(password), salt, p.Time, p.MemoryKiB, p.Threads, KeySize), nil
	default:
		return scrypt.Key([]byte(password), salt, p.N, p.R, p.P, KeySize)
	}
}

// CheckKDFParams validates p without deriving anything.
func CheckKDFParams(p domain.KDFParams) error {
	switch p.Name {
	case domain.KDFArgon2id:
		if p.Time == 0 || p.MemoryKiB == 0 || p.Threads == 0 {
			return fmt.Errorf("%w: zero argon2id cost", ErrBadKDFParams)
		}
		if p.Time > MaxArgonTime || p.MemoryKiB > MaxArgonMemoryKiB || p.Threads > MaxArgonThreads {
			return fmt.Errorf("%w: argon2id cost t=%d m=%d p=%d over limit",
				ErrBadKDFParams, p.Time, p.MemoryKiB, p.Threads)
		}
		return nil
	case domain.KDFScrypt:
		if p.N <= 1 || p.N&(p.N-1) != 0 || p.N > MaxScryptN {
			return fmt.Errorf("%w: scrypt N=%d", ErrBadKDFParams, p.N)
		}
		if p.R <= 0 || p.P <= 0 || p.R > MaxScryptR || p.P > MaxScryptP || 128*p.N*p.R > maxScryptMemory {
			return fmt.Errorf("%w: scrypt r=%d p=%d", ErrBadKDFParams, p.R, p.P)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kdf %q", ErrBadKDFParams, p.Name)
	}
}

// PasswordSealed is a secret sealed under a password-derived key.
type PasswordSealed struct {
	Sealed domain.Sealed
	Salt   []byte
	KDF    domain.KDFParams
}

// SealWithPassword encrypts secret under a key derived from password and a
// fresh salt. The salt is bound as associated data.
func SealWithPassword(password string, secret []byte, p domain.KDFParams) (PasswordSealed, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return PasswordSealed{}, err
	}
	kek, err := DeriveWrappingKey(password, salt, p)
	if err != nil {
		return PasswordSealed{}, err
	}
	defer memzero.Zero(kek)

	s, err := seal(DefaultAlgorithm, kek, secret, salt)
	if err != nil {
		return PasswordSealed{}, err
	}
	return PasswordSealed{Sealed: s, Salt: salt, KDF: p}, nil
}

// OpenWithPassword reverses SealWithPassword. A tag failure is reported as
// domain.ErrWrongPassword.
func OpenWithPassword(password string, ps PasswordSealed) ([]byte, error) {
	kek, err := DeriveWrappingKey(password, ps.Salt, ps.KDF)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(kek)

	pt, err := open(kek, ps.Sealed, ps.Salt)
	if err != nil {
		return nil, domain.ErrWrongPassword
	}
	return pt, nil
}
