package devrelay

import (
	"context"
	"encoding/json"

	"cipherline/internal/domain"
)

// View is an in-process client of the relay acting as one user. It
// implements the same collaborator interfaces as the HTTP client, without
// the network.
type View struct {
	s    *State
	user domain.UserID
}

// As returns a View for user.
func (s *State) As(user domain.UserID) *View { return &View{s: s, user: user} }

// User returns the acting user.
func (v *View) User() domain.UserID { return v.user }

func (v *View) PublishPublicKey(ctx context.Context, jwk domain.PublicKeyJWK, algorithm string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(jwk)
	if err != nil {
		return err
	}
	v.s.publishKey(v.user, string(b), algorithm)
	return nil
}

func (v *View) FetchPublicKey(ctx context.Context, user domain.UserID) (domain.PublicKeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.PublicKeyRecord{}, err
	}
	return v.s.fetchKey(user)
}

func (v *View) PublishGroupKeyWrap(ctx context.Context, w domain.WrappedGroupKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return v.s.putWrap(v.user, w)
}

func (v *View) FetchGroupKeyWrap(ctx context.Context, chat domain.ChatID) (domain.WrappedGroupKey, error) {
	if err := ctx.Err(); err != nil {
		return domain.WrappedGroupKey{}, err
	}
	return v.s.fetchWrap(v.user, chat)
}

func (v *View) UploadBlob(
	ctx context.Context,
	ciphertext []byte,
	filename string,
	mimeType string,
	nonce []byte,
) (domain.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Attachment{}, err
	}
	return v.s.putBlob(ciphertext, filename, mimeType, nonce, ""), nil
}

func (v *View) DownloadBlob(ctx context.Context, id domain.AttachmentID) (domain.BlobDownload, error) {
	if err := ctx.Err(); err != nil {
		return domain.BlobDownload{}, err
	}
	meta, data, err := v.s.getBlob(id)
	if err != nil {
		return domain.BlobDownload{}, err
	}
	return domain.BlobDownload{
		Ciphertext: data,
		Nonce:      meta.Nonce,
		Algo:       meta.Algo,
		MimeType:   meta.MimeType,
		Filename:   meta.Filename,
	}, nil
}

func (v *View) FetchChats(ctx context.Context) ([]domain.Chat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return v.s.chatsFor(v.user), nil
}

func (v *View) FetchUnreadCounts(ctx context.Context) (map[domain.ChatID]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return v.s.unreadFor(v.user), nil
}

func (v *View) FetchMessages(ctx context.Context, chat domain.ChatID) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return v.s.history(v.user, chat)
}

func (v *View) MarkRead(ctx context.Context, chat domain.ChatID, lastMessageID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return v.s.markRead(v.user, chat, lastMessageID)
}

var (
	_ domain.Directory = (*View)(nil)
	_ domain.BlobStore = (*View)(nil)
	_ domain.Roster    = (*View)(nil)
)
