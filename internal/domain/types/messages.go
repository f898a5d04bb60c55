package types

import (
	"errors"
	"time"
)

// Content types carried by send_message.
const (
	ContentText  = "text"
	ContentImage = "image"
	ContentVideo = "video"
	ContentFile  = "file"
)

var (
	errBothPayloads = errors.New("message carries both plaintext and ciphertext")
	errNoPayload    = errors.New("message carries neither content, ciphertext nor attachment")
)

// Attachment is the structured metadata of an uploaded blob. The ciphertext
// itself lives in the blob store.
type Attachment struct {
	ID        AttachmentID `json:"id"`
	Filename  string       `json:"filename"`
	MimeType  string       `json:"mime_type"`
	SizeBytes int64        `json:"size_bytes"`
	Nonce     []byte       `json:"nonce"`
	Algo      Algorithm    `json:"algo"`
}

// BlobDownload is what the blob store returns for an attachment.
type BlobDownload struct {
	Ciphertext []byte
	Nonce      []byte
	Algo       Algorithm
	MimeType   string
	Filename   string
}

// Message is a chat message as relayed by the server.
type Message struct {
	ID          int64       `json:"id"`
	ChatID      ChatID      `json:"chat_id,omitempty"`
	Sender      Participant `json:"sender"`
	Timestamp   time.Time   `json:"timestamp"`
	ContentType string      `json:"content_type,omitempty"`
	Content     *string     `json:"content"`
	Ciphertext  []byte      `json:"ciphertext,omitempty"`
	Nonce       []byte      `json:"nonce,omitempty"`
	Algo        Algorithm   `json:"algo,omitempty"`
	Attachment  *Attachment `json:"attachment,omitempty"`
}

// Encrypted reports whether the message body is ciphertext.
func (m Message) Encrypted() bool { return len(m.Ciphertext) > 0 }

// Sealed returns the encrypted body.
func (m Message) Sealed() Sealed {
	return Sealed{Ciphertext: m.Ciphertext, Nonce: m.Nonce, Algo: m.Algo}
}

// Validate enforces that plaintext and ciphertext are never both present.
func (m Message) Validate() error {
	if m.Content != nil && m.Encrypted() {
		return errBothPayloads
	}
	if m.Content == nil && !m.Encrypted() && m.Attachment == nil {
		return errNoPayload
	}
	return nil
}

// DecryptedMessage is a transcript entry. Err is set when the body could not
// be decrypted; the entry is still kept so the transcript stays ordered.
type DecryptedMessage struct {
	Message Message
	Text    string
	Err     error
}
