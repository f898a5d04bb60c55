package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"cipherline/internal/crypto"
	"cipherline/internal/domain"
	"cipherline/internal/store"
	"cipherline/internal/util/memzero"
)

// MinPasswordLength is the shortest password accepted for wrapping.
const MinPasswordLength = 8

var (
	errPublicMismatch = errors.New("keystore: stored public key does not match private key")
	errNotBackup      = errors.New("keystore: not a key backup document")
)

// Service implements domain.KeyStore on top of a domain.KeyRecordStore.
type Service struct {
	store domain.KeyRecordStore
	kdf   domain.KDFParams
	log   *zap.Logger
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithKDF sets the parameters used for newly wrapped records.
func WithKDF(p domain.KDFParams) Option { return func(s *Service) { s.kdf = p } }

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

// New returns a keystore backed by st.
func New(st domain.KeyRecordStore, opts ...Option) *Service {
	s := &Service{
		store: st,
		kdf:   crypto.DefaultKDFParams(),
		log:   zap.NewNop(),
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GenerateKeypair creates a fresh X25519 keypair. Nothing is stored.
func (s *Service) GenerateKeypair() (domain.Keypair, error) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.Keypair{}, err
	}
	return domain.Keypair{Private: priv, Public: pub}, nil
}

// CheckPassword reports whether password is acceptable for wrapping.
func CheckPassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return domain.ErrWeakPassword
	}
	return nil
}

// Persist wraps kp under password and replaces the stored record.
func (s *Service) Persist(password string, kp domain.Keypair) error {
	if err := CheckPassword(password); err != nil {
		return err
	}
	rec, err := s.wrap(password, kp)
	if err != nil {
		return err
	}
	if err := s.store.SaveKeyRecord(rec); err != nil {
		return fmt.Errorf("save key record: %w", err)
	}
	s.log.Info("keypair persisted",
		zap.String("fingerprint", crypto.Fingerprint(kp.Public).String()),
		zap.String("kdf", rec.KDF.Name))
	return nil
}

// Unlock decrypts the stored keypair.
func (s *Service) Unlock(password string) (domain.Keypair, error) {
	rec, ok, err := s.store.LoadKeyRecord()
	if err != nil {
		return domain.Keypair{}, err
	}
	if !ok {
		return domain.Keypair{}, domain.ErrNoKeypair
	}
	return unwrap(password, rec)
}

// HasKeypair reports whether a record exists.
func (s *Service) HasKeypair() (bool, error) {
	_, ok, err := s.store.LoadKeyRecord()
	return ok, err
}

// ExportBackup verifies password against the stored record and returns a
// freshly salted, self-contained backup document.
func (s *Service) ExportBackup(password string) ([]byte, error) {
	kp, err := s.Unlock(password)
	if err != nil {
		return nil, err
	}
	defer kp.Wipe()

	rec, err := s.wrap(password, kp)
	if err != nil {
		return nil, err
	}
	doc := domain.BackupDocument{
		Kind:      domain.BackupKind,
		Version:   store.KeyRecordVersion,
		CreatedAt: s.now().UTC(),
		Record:    rec,
	}
	return json.MarshalIndent(doc, "", "  ")
}

// ImportBackup opens a backup with password, checks the keypair is
// consistent and persists it as this device's record.
func (s *Service) ImportBackup(password string, blob []byte) (domain.Keypair, error) {
	var doc domain.BackupDocument
	if err := json.Unmarshal(blob, &doc); err != nil {
		return domain.Keypair{}, fmt.Errorf("%w: %v", errNotBackup, err)
	}
	if doc.Kind != domain.BackupKind {
		return domain.Keypair{}, errNotBackup
	}
	if doc.Version > store.KeyRecordVersion {
		return domain.Keypair{}, fmt.Errorf("keystore: unsupported backup version %d", doc.Version)
	}
	kp, err := unwrap(password, doc.Record)
	if err != nil {
		return domain.Keypair{}, err
	}
	if err := s.Persist(password, kp); err != nil {
		kp.Wipe()
		return domain.Keypair{}, err
	}
	return kp, nil
}

// Reset deletes the stored record. The keypair is unrecoverable afterwards
// unless a backup exists.
func (s *Service) Reset() error {
	if err := s.store.DeleteKeyRecord(); err != nil {
		return err
	}
	s.log.Warn("keypair record deleted")
	return nil
}

func (s *Service) wrap(password string, kp domain.Keypair) (domain.EncryptedKeyRecord, error) {
	ps, err := crypto.SealWithPassword(password, kp.Private.Slice(), s.kdf)
	if err != nil {
		return domain.EncryptedKeyRecord{}, err
	}
	return domain.EncryptedKeyRecord{
		Version:    store.KeyRecordVersion,
		Ciphertext: ps.Sealed.Ciphertext,
		Nonce:      ps.Sealed.Nonce,
		Salt:       ps.Salt,
		Algo:       ps.Sealed.Algo,
		KDF:        ps.KDF,
		PublicKey:  crypto.PublicJWK(kp.Public),
	}, nil
}

func unwrap(password string, rec domain.EncryptedKeyRecord) (domain.Keypair, error) {
	raw, err := crypto.OpenWithPassword(password, crypto.PasswordSealed{
		Sealed: domain.Sealed{Ciphertext: rec.Ciphertext, Nonce: rec.Nonce, Algo: rec.Algo},
		Salt:   rec.Salt,
		KDF:    rec.KDF,
	})
	if err != nil {
		return domain.Keypair{}, err
	}
	defer memzero.Zero(raw)

	var kp domain.Keypair
	if len(raw) != len(kp.Private) {
		return domain.Keypair{}, fmt.Errorf("keystore: private key is %d bytes", len(raw))
	}
	copy(kp.Private[:], raw)

	kp.Public, err = crypto.PublicFromPrivate(kp.Private)
	if err != nil {
		kp.Wipe()
		return domain.Keypair{}, err
	}
	stored, err := crypto.ParsePublicJWK(rec.PublicKey)
	if err != nil || stored != kp.Public {
		kp.Wipe()
		return domain.Keypair{}, errPublicMismatch
	}
	return kp, nil
}

// Compile-time assertion that Service implements domain.KeyStore.
var _ domain.KeyStore = (*Service)(nil)
