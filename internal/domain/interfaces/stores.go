package interfaces

import domaintypes "cipherline/internal/domain/types"

// KeyRecordStore persists the password-wrapped device key.
type KeyRecordStore interface {
	SaveKeyRecord(rec domaintypes.EncryptedKeyRecord) error
	LoadKeyRecord() (domaintypes.EncryptedKeyRecord, bool, error)
	DeleteKeyRecord() error
}
