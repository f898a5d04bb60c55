package crypto

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"cipherline/internal/domain"
)

const (
	jwkKeyType = "OKP"
	jwkCurve   = "X25519"
)

var errBadJWK = errors.New("crypto: invalid public key jwk")

// PublicJWK encodes pub as an OKP/X25519 JWK.
func PublicJWK(pub domain.X25519Public) domain.PublicKeyJWK {
	return domain.PublicKeyJWK{
		Kty: jwkKeyType,
		Crv: jwkCurve,
		X:   base64.RawURLEncoding.EncodeToString(pub[:]),
	}
}

// ParsePublicJWK validates and decodes a JWK.
func ParsePublicJWK(j domain.PublicKeyJWK) (domain.X25519Public, error) {
	var pub domain.X25519Public
	if j.Kty != jwkKeyType || j.Crv != jwkCurve {
		return pub, fmt.Errorf("%w: kty=%q crv=%q", errBadJWK, j.Kty, j.Crv)
	}
	raw, err := base64.RawURLEncoding.DecodeString(j.X)
	if err != nil {
		return pub, fmt.Errorf("%w: %v", errBadJWK, err)
	}
	if len(raw) != len(pub) {
		return pub, fmt.Errorf("%w: want %d bytes, got %d", errBadJWK, len(pub), len(raw))
	}
	copy(pub[:], raw)
	return pub, nil
}

// MarshalPublicJWK returns the JSON string form used on the wire.
func MarshalPublicJWK(pub domain.X25519Public) (string, error) {
	b, err := json.Marshal(PublicJWK(pub))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnmarshalPublicJWK parses the JSON string form.
func UnmarshalPublicJWK(s string) (domain.X25519Public, error) {
	var j domain.PublicKeyJWK
	if err := json.Unmarshal([]byte(s), &j); err != nil {
		return domain.X25519Public{}, fmt.Errorf("%w: %v", errBadJWK, err)
	}
	return ParsePublicJWK(j)
}
