package interfaces

import (
	"context"

	domaintypes "cipherline/internal/domain/types"
)

// Directory is the server viewed as a key directory. Lookups of absent
// entries fail with domain.ErrNotFound.
type Directory interface {
	PublishPublicKey(ctx context.Context, jwk domaintypes.PublicKeyJWK, algorithm string) error
	FetchPublicKey(ctx context.Context, user domaintypes.UserID) (domaintypes.PublicKeyRecord, error)

	PublishGroupKeyWrap(ctx context.Context, wrap domaintypes.WrappedGroupKey) error
	// FetchGroupKeyWrap returns the wrap addressed to the caller.
	FetchGroupKeyWrap(ctx context.Context, chat domaintypes.ChatID) (domaintypes.WrappedGroupKey, error)
}

// BlobStore moves attachment ciphertext over plain HTTP.
type BlobStore interface {
	UploadBlob(
		ctx context.Context,
		ciphertext []byte,
		filename string,
		mimeType string,
		nonce []byte,
	) (domaintypes.Attachment, error)
	DownloadBlob(ctx context.Context, id domaintypes.AttachmentID) (domaintypes.BlobDownload, error)
}

// Roster exposes the server's chat list, unread counts and history.
type Roster interface {
	FetchChats(ctx context.Context) ([]domaintypes.Chat, error)
	FetchUnreadCounts(ctx context.Context) (map[domaintypes.ChatID]int, error)
	FetchMessages(ctx context.Context, chat domaintypes.ChatID) ([]domaintypes.Message, error)
	MarkRead(ctx context.Context, chat domaintypes.ChatID, lastMessageID int64) error
}
