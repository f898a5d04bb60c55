package interfaces

import (
	"context"

	domaintypes "cipherline/internal/domain/types"
)

// KeyStore owns the device keypair lifecycle.
type KeyStore interface {
	GenerateKeypair() (domaintypes.Keypair, error)
	Persist(password string, kp domaintypes.Keypair) error
	Unlock(password string) (domaintypes.Keypair, error)
	HasKeypair() (bool, error)
	ExportBackup(password string) ([]byte, error)
	ImportBackup(password string, blob []byte) (domaintypes.Keypair, error)
	Reset() error
}

// PeerKeys publishes our key, fetches peers and derives pairwise secrets.
type PeerKeys interface {
	Self() domaintypes.UserID
	Publish(ctx context.Context) error
	Fetch(ctx context.Context, user domaintypes.UserID) (domaintypes.Peer, error)
	DeriveShared(peer domaintypes.UserID, peerKey domaintypes.X25519Public) (domaintypes.SharedSecret, error)
	SharedWith(ctx context.Context, peer domaintypes.UserID) (domaintypes.SharedSecret, error)
	// Forget drops the cached secret so the peer's key is fetched again.
	Forget(peer domaintypes.UserID)
}

// GroupKeys resolves the per-chat group key.
type GroupKeys interface {
	EnsureGroupKey(ctx context.Context, chat domaintypes.Chat) (domaintypes.GroupKey, error)
	Cached(chat domaintypes.ChatID) (domaintypes.GroupKey, bool)
	Invalidate(chat domaintypes.ChatID)
}

// KeyCandidate is one key to try when the right one is ambiguous.
type KeyCandidate struct {
	Label string
	Key   []byte
}

// KeyResolver picks the symmetric key(s) for a chat.
type KeyResolver interface {
	// MessageKey returns the key used for text messages in chat.
	MessageKey(ctx context.Context, chat domaintypes.Chat) ([]byte, error)
	// AttachmentCandidates lists keys to try, most likely first.
	AttachmentCandidates(
		ctx context.Context,
		chat domaintypes.Chat,
		peerHint domaintypes.UserID,
	) []KeyCandidate
}
