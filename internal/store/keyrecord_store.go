package store

import (
	"fmt"
	"path/filepath"
	"sync"

	"cipherline/internal/domain"
)

const (
	keyRecordFile = "keypair.json"

	// KeyRecordVersion is the newest record format this build writes.
	KeyRecordVersion = 1
)

// KeyRecordFileStore keeps the password-wrapped keypair in a single file
// under dir.
type KeyRecordFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewKeyRecordFileStore returns a store rooted at dir.
func NewKeyRecordFileStore(dir string) *KeyRecordFileStore {
	return &KeyRecordFileStore{dir: dir}
}

// Path returns the record location.
func (s *KeyRecordFileStore) Path() string { return filepath.Join(s.dir, keyRecordFile) }

// SaveKeyRecord replaces the stored record.
func (s *KeyRecordFileStore) SaveKeyRecord(rec domain.EncryptedKeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Version == 0 {
		rec.Version = KeyRecordVersion
	}
	return writeJSON(s.Path(), rec, 0o600)
}

// LoadKeyRecord returns the stored record and whether one exists.
func (s *KeyRecordFileStore) LoadKeyRecord() (domain.EncryptedKeyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec domain.EncryptedKeyRecord
	ok, err := readJSON(s.Path(), &rec)
	if err != nil || !ok {
		return domain.EncryptedKeyRecord{}, false, err
	}
	if rec.Version > KeyRecordVersion {
		return domain.EncryptedKeyRecord{}, false, fmt.Errorf("unsupported key record version %d", rec.Version)
	}
	return rec, true, nil
}

// DeleteKeyRecord removes the record. Deleting an absent record succeeds.
func (s *KeyRecordFileStore) DeleteKeyRecord() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeFile(s.Path())
}

// Compile-time assertion that KeyRecordFileStore implements domain.KeyRecordStore.
var _ domain.KeyRecordStore = (*KeyRecordFileStore)(nil)
