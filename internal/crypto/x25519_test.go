package crypto_test

import (
	"testing"

	"cipherline/internal/crypto"
	"cipherline/internal/domain"
)

func TestDeriveShared_Symmetric(t *testing.T) {
	aPriv, aPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("gen a: %v", err)
	}
	bPriv, bPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("gen b: %v", err)
	}

	ab, err := crypto.DeriveShared(aPriv, bPub)
	if err != nil {
		t.Fatalf("derive ab: %v", err)
	}
	ba, err := crypto.DeriveShared(bPriv, aPub)
	if err != nil {
		t.Fatalf("derive ba: %v", err)
	}
	if ab != ba {
		t.Fatal("shared secrets differ")
	}
	if ab == (domain.SharedSecret{}) {
		t.Fatal("shared secret is zero")
	}

	dh, _ := crypto.DH(aPriv, bPub)
	if ab == domain.SharedSecret(dh) {
		t.Fatal("shared secret must not equal raw DH output")
	}
}

func TestDeriveShared_LowOrderPeerRejected(t *testing.T) {
	priv, _, _ := crypto.GenerateX25519()
	if _, err := crypto.DeriveShared(priv, domain.X25519Public{}); err == nil {
		t.Fatal("expected error for all-zero peer key")
	}
}

func TestPublicFromPrivate_MatchesGenerated(t *testing.T) {
	priv, pub, _ := crypto.GenerateX25519()
	got, err := crypto.PublicFromPrivate(priv)
	if err != nil {
		t.Fatalf("public: %v", err)
	}
	if got != pub {
		t.Fatal("public key mismatch")
	}
}

func TestJWK_RoundTrip(t *testing.T) {
	_, pub, _ := crypto.GenerateX25519()
	s, err := crypto.MarshalPublicJWK(pub)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := crypto.UnmarshalPublicJWK(s)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != pub {
		t.Fatal("jwk round trip mismatch")
	}
}

func TestJWK_Rejects(t *testing.T) {
	_, pub, _ := crypto.GenerateX25519()
	good := crypto.PublicJWK(pub)

	bad := []domain.PublicKeyJWK{
		{Kty: "EC", Crv: good.Crv, X: good.X},
		{Kty: good.Kty, Crv: "P-256", X: good.X},
		{Kty: good.Kty, Crv: good.Crv, X: "!!"},
		{Kty: good.Kty, Crv: good.Crv, X: "AAAA"},
	}
	for i, j := range bad {
		if _, err := crypto.ParsePublicJWK(j); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
	if _, err := crypto.UnmarshalPublicJWK("not json"); err == nil {
		t.Fatal("expected error for invalid json")
	}
}

func TestFingerprint_Stable(t *testing.T) {
	_, pub, _ := crypto.GenerateX25519()
	a, b := crypto.Fingerprint(pub), crypto.Fingerprint(pub)
	if a != b || len(a) != 20 {
		t.Fatalf("fingerprint %q / %q", a, b)
	}
}
