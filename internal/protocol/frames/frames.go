package frames

import (
	"cipherline/internal/domain"
)

// Version is the protocol version written on every frame.
const Version = 1

// Type is the frame discriminator.
type Type string

const (
	TypeSubscribe   Type = "subscribe"
	TypeUnsubscribe Type = "unsubscribe"
	TypeSendMessage Type = "send_message"

	TypeSubscribed       Type = "subscribed"
	TypeUnsubscribed     Type = "unsubscribed"
	TypeMessage          Type = "message"
	TypeNewMessage       Type = "new_message"
	TypePresenceSnapshot Type = "presence_snapshot"
	TypePresence         Type = "presence"
	TypeUnreadUpdate     Type = "unread_update"
	TypeRemovedFromChat  Type = "removed_from_chat"
	TypeUsersChanged     Type = "users_changed"
	TypeChatsChanged     Type = "chats_changed"
)

// Frame is implemented by every concrete frame.
type Frame interface {
	FrameType() Type
}

type Subscribe struct {
	ChatID domain.ChatID `json:"chat_id"`
}

type Unsubscribe struct {
	ChatID domain.ChatID `json:"chat_id"`
}

// SendMessage carries either Content or Ciphertext, never both.
type SendMessage struct {
	ChatID       domain.ChatID        `json:"chat_id"`
	ClientID     string               `json:"client_id,omitempty"`
	Content      *string              `json:"content,omitempty"`
	Ciphertext   []byte               `json:"ciphertext,omitempty"`
	Nonce        []byte               `json:"nonce,omitempty"`
	Algo         domain.Algorithm     `json:"algo,omitempty"`
	ContentType  string               `json:"content_type"`
	AttachmentID *domain.AttachmentID `json:"attachment_id,omitempty"`
}

type Subscribed struct {
	ChatID domain.ChatID `json:"chat_id"`
}

type Unsubscribed struct {
	ChatID domain.ChatID `json:"chat_id"`
}

type Message struct {
	ChatID  domain.ChatID  `json:"chat_id"`
	Message domain.Message `json:"message"`
}

type NewMessage struct {
	ChatID domain.ChatID `json:"chat_id"`
}

type PresenceSnapshot struct {
	OnlineUserIDs []domain.UserID `json:"online_user_ids"`
}

type Presence struct {
	UserID domain.UserID `json:"user_id"`
	Online bool          `json:"online"`
}

type UnreadUpdate struct {
	ChatID domain.ChatID `json:"chat_id"`
}

type RemovedFromChat struct {
	ChatID domain.ChatID `json:"chat_id"`
}

type UsersChanged struct{}

type ChatsChanged struct{}

func (Subscribe) FrameType() Type        { return TypeSubscribe }
func (Unsubscribe) FrameType() Type      { return TypeUnsubscribe }
func (SendMessage) FrameType() Type      { return TypeSendMessage }
func (Subscribed) FrameType() Type       { return TypeSubscribed }
func (Unsubscribed) FrameType() Type     { return TypeUnsubscribed }
func (Message) FrameType() Type          { return TypeMessage }
func (NewMessage) FrameType() Type       { return TypeNewMessage }
func (PresenceSnapshot) FrameType() Type { return TypePresenceSnapshot }
func (Presence) FrameType() Type         { return TypePresence }
func (UnreadUpdate) FrameType() Type     { return TypeUnreadUpdate }
func (RemovedFromChat) FrameType() Type  { return TypeRemovedFromChat }
func (UsersChanged) FrameType() Type     { return TypeUsersChanged }
func (ChatsChanged) FrameType() Type     { return TypeChatsChanged }
