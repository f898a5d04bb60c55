package attachment

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cipherline/internal/crypto"
	"cipherline/internal/domain"
	"cipherline/internal/util/memzero"
)

// Handle owns decrypted attachment bytes until released.
type Handle struct {
	ID           uuid.UUID
	AttachmentID domain.AttachmentID
	Filename     string
	MimeType     string
	KeyLabel     string

	mu        sync.Mutex
	data      []byte
	released  bool
	onRelease func()
}

// Bytes returns the plaintext, or nil once released.
func (h *Handle) Bytes() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.data
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Release wipes the plaintext. It is safe to call more than once.
func (h *Handle) Release() {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	memzero.Zero(h.data)
	h.data = nil
	h.released = true
	cb := h.onRelease
	h.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Codec implements upload and multi-candidate download.
type Codec struct {
	blobs domain.BlobStore
	log   *zap.Logger

	mu      sync.Mutex
	handles map[domain.AttachmentID]*Handle
}

// New returns a Codec over blobs.
func New(blobs domain.BlobStore, log *zap.Logger) *Codec {
	if log == nil {
		log = zap.NewNop()
	}
	return &Codec{blobs: blobs, log: log.Named("attachment"), handles: make(map[domain.AttachmentID]*Handle)}
}

// Upload encrypts plaintext under key with a fresh nonce and stores the
// ciphertext.
func (c *Codec) Upload(ctx context.Context, plaintext []byte, filename, mimeType string, key []byte) (domain.Attachment, error) {
	sealed, err := crypto.EncryptBytes(key, plaintext)
	if err != nil {
		return domain.Attachment{}, err
	}
	att, err := c.blobs.UploadBlob(ctx, sealed.Ciphertext, filename, mimeType, sealed.Nonce)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("%w: %w", domain.ErrUploadFailed, err)
	}
	if len(att.Nonce) == 0 {
		att.Nonce = sealed.Nonce
	}
	if att.Algo == "" {
		att.Algo = sealed.Algo
	}
	c.log.Debug("attachment uploaded", zap.Stringer("id", att.ID), zap.Int64("size", att.SizeBytes))
	return att, nil
}

// Download fetches att and tries candidates in order. It fails with
// domain.ErrMissingKey when there are no candidates and
// domain.ErrDecryptionFailed when none of them authenticates.
func (c *Codec) Download(ctx context.Context, att domain.Attachment, candidates []domain.KeyCandidate) (*Handle, error) {
	c.mu.Lock()
	if h, ok := c.handles[att.ID]; ok {
		c.mu.Unlock()
		return h, nil
	}
	c.mu.Unlock()

	if len(candidates) == 0 {
		return nil, fmt.Errorf("attachment %s: %w", att.ID, domain.ErrMissingKey)
	}
	dl, err := c.blobs.DownloadBlob(ctx, att.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDownloadFailed, err)
	}

	sealed := domain.Sealed{Ciphertext: dl.Ciphertext, Nonce: att.Nonce, Algo: att.Algo}
	if len(sealed.Nonce) == 0 {
		sealed.Nonce = dl.Nonce
	}
	if sealed.Algo == "" {
		sealed.Algo = dl.Algo
	}

	for i, cand := range candidates {
		pt, err := crypto.DecryptBytes(cand.Key, sealed)
		if err != nil {
			c.log.Debug("candidate key rejected",
				zap.Stringer("id", att.ID), zap.Int("index", i), zap.String("label", cand.Label))
			continue
		}
		return c.keep(att, dl, cand.Label, pt), nil
	}
	return nil, fmt.Errorf("attachment %s: %d candidates: %w", att.ID, len(candidates), domain.ErrDecryptionFailed)
}

func (c *Codec) keep(att domain.Attachment, dl domain.BlobDownload, label string, pt []byte) *Handle {
	h := &Handle{
		ID:           uuid.New(),
		AttachmentID: att.ID,
		Filename:     firstNonEmpty(att.Filename, dl.Filename),
		MimeType:     firstNonEmpty(att.MimeType, dl.MimeType),
		KeyLabel:     label,
		data:         pt,
	}
	h.onRelease = func() {
		c.mu.Lock()
		if c.handles[att.ID] == h {
			delete(c.handles, att.ID)
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.handles[att.ID]; ok {
		// Lost a race with a concurrent download of the same blob.
		memzero.Zero(pt)
		return prev
	}
	c.handles[att.ID] = h
	return h
}

// Live returns the number of unreleased handles.
func (c *Codec) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

// ReleaseAll releases every outstanding handle.
func (c *Codec) ReleaseAll() {
	c.mu.Lock()
	hs := make([]*Handle, 0, len(c.handles))
	for _, h := range c.handles {
		hs = append(hs, h)
	}
	c.mu.Unlock()
	for _, h := range hs {
		h.Release()
	}
}

// ContentType maps a MIME type onto the send_message content type.
func ContentType(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return domain.ContentImage
	case strings.HasPrefix(mimeType, "video/"):
		return domain.ContentVideo
	default:
		return domain.ContentFile
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
