package peerkeys

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"cipherline/internal/crypto"
	"cipherline/internal/domain"
	"cipherline/internal/util/memzero"
)

type sharedEntry struct {
	peerKey domain.X25519Public
	secret  domain.SharedSecret
}

// Service implements domain.PeerKeys.
type Service struct {
	self domain.UserID
	kp   domain.Keypair
	dir  domain.Directory
	log  *zap.Logger

	mu    sync.Mutex
	cache map[domain.UserID]sharedEntry
}

// New returns a Service for the unlocked keypair of user self.
func New(self domain.UserID, kp domain.Keypair, dir domain.Directory, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		self:  self,
		kp:    kp,
		dir:   dir,
		log:   log.Named("peerkeys"),
		cache: make(map[domain.UserID]sharedEntry),
	}
}

// Self returns the local user id.
func (s *Service) Self() domain.UserID { return s.self }

// PublicKey returns the local public key.
func (s *Service) PublicKey() domain.X25519Public { return s.kp.Public }

// Publish upserts our public key in the directory. Repeating it is harmless.
func (s *Service) Publish(ctx context.Context) error {
	if err := s.dir.PublishPublicKey(ctx, crypto.PublicJWK(s.kp.Public), domain.KeyAlgorithm); err != nil {
		return fmt.Errorf("publish public key: %w", err)
	}
	s.log.Info("public key published", zap.Stringer("fingerprint", crypto.Fingerprint(s.kp.Public)))
	return nil
}

// Fetch returns a peer's published key. Absent peers yield domain.ErrNotFound.
func (s *Service) Fetch(ctx context.Context, user domain.UserID) (domain.Peer, error) {
	rec, err := s.dir.FetchPublicKey(ctx, user)
	if err != nil {
		return domain.Peer{}, err
	}
	if rec.Algorithm != "" && rec.Algorithm != domain.KeyAlgorithm {
		return domain.Peer{}, fmt.Errorf("peer %s uses unsupported algorithm %q", user, rec.Algorithm)
	}
	pub, err := crypto.UnmarshalPublicJWK(rec.PublicKeyJWK)
	if err != nil {
		return domain.Peer{}, fmt.Errorf("peer %s: %w", user, err)
	}
	return domain.Peer{UserID: user, PublicKey: pub, Algorithm: domain.KeyAlgorithm}, nil
}

// DeriveShared returns the secret shared with peer under peerKey, reusing
// the cached value while the peer's key is unchanged.
func (s *Service) DeriveShared(peer domain.UserID, peerKey domain.X25519Public) (domain.SharedSecret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.cache[peer]; ok {
		if e.peerKey == peerKey {
			return e.secret, nil
		}
		s.log.Warn("peer key changed", zap.Stringer("peer", peer))
		memzero.Zero(e.secret[:])
	}
	secret, err := crypto.DeriveShared(s.kp.Private, peerKey)
	if err != nil {
		return domain.SharedSecret{}, fmt.Errorf("derive shared secret with %s: %w", peer, err)
	}
	s.cache[peer] = sharedEntry{peerKey: peerKey, secret: secret}
	return secret, nil
}

// SharedWith returns the secret for peer, fetching its key on first use.
func (s *Service) SharedWith(ctx context.Context, peer domain.UserID) (domain.SharedSecret, error) {
	s.mu.Lock()
	e, ok := s.cache[peer]
	s.mu.Unlock()
	if ok {
		return e.secret, nil
	}

	if peer == s.self {
		return s.DeriveShared(peer, s.kp.Public)
	}
	p, err := s.Fetch(ctx, peer)
	if err != nil {
		return domain.SharedSecret{}, err
	}
	return s.DeriveShared(peer, p.PublicKey)
}

// Forget drops the cached secret for peer so the next use refetches its key.
func (s *Service) Forget(peer domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.cache[peer]; ok {
		memzero.Zero(e.secret[:])
		delete(s.cache, peer)
	}
}

// Close wipes every cached secret and the private key.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.cache {
		memzero.Zero(e.secret[:])
		delete(s.cache, id)
	}
	s.kp.Wipe()
}

// Compile-time assertion that Service implements domain.PeerKeys.
var _ domain.PeerKeys = (*Service)(nil)
