package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"cipherline/internal/domain"
	"cipherline/internal/store"
)

func sampleRecord() domain.EncryptedKeyRecord {
	return domain.EncryptedKeyRecord{
		Ciphertext: []byte{1, 2, 3},
		Nonce:      make([]byte, 12),
		Salt:       make([]byte, 16),
		Algo:       domain.AlgChaCha20Poly1305,
		KDF:        domain.KDFParams{Name: domain.KDFArgon2id, Time: 1, MemoryKiB: 1024, Threads: 1},
		PublicKey:  domain.PublicKeyJWK{Kty: "OKP", Crv: "X25519", X: "abc"},
	}
}

func TestKeyRecord_SaveLoad_OK(t *testing.T) {
	var s domain.KeyRecordStore = store.NewKeyRecordFileStore(t.TempDir())

	if _, ok, err := s.LoadKeyRecord(); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	rec := sampleRecord()
	if err := s.SaveKeyRecord(rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := s.LoadKeyRecord()
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.Version != store.KeyRecordVersion {
		t.Fatalf("version = %d", got.Version)
	}
	if string(got.Ciphertext) != string(rec.Ciphertext) || got.KDF != rec.KDF || got.PublicKey != rec.PublicKey {
		t.Fatalf("mismatch after load: %+v", got)
	}
}

func TestKeyRecord_FileMode(t *testing.T) {
	s := store.NewKeyRecordFileStore(filepath.Join(t.TempDir(), "nested"))
	if err := s.SaveKeyRecord(sampleRecord()); err != nil {
		t.Fatalf("save: %v", err)
	}
	fi, err := os.Stat(s.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %v", fi.Mode().Perm())
	}
}

func TestKeyRecord_Delete(t *testing.T) {
	s := store.NewKeyRecordFileStore(t.TempDir())
	if err := s.DeleteKeyRecord(); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
	if err := s.SaveKeyRecord(sampleRecord()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.DeleteKeyRecord(); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.LoadKeyRecord(); ok {
		t.Fatal("record still present")
	}
}

func TestKeyRecord_FutureVersionRejected(t *testing.T) {
	s := store.NewKeyRecordFileStore(t.TempDir())
	rec := sampleRecord()
	rec.Version = store.KeyRecordVersion + 1
	if err := s.SaveKeyRecord(rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, _, err := s.LoadKeyRecord(); err == nil {
		t.Fatal("expected error for newer record version")
	}
}

func TestKeyRecord_Corrupt(t *testing.T) {
	s := store.NewKeyRecordFileStore(t.TempDir())
	if err := os.WriteFile(s.Path(), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.LoadKeyRecord(); err == nil {
		t.Fatal("expected decode error")
	}
}
