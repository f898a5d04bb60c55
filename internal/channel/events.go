package channel

import "cipherline/internal/domain"

// Event is delivered on Channel.Events.
type Event interface{ isEvent() }

// StateChanged reports a connection state transition.
type StateChanged struct{ State State }

// MessageReceived is a live message appended to the active transcript.
type MessageReceived struct {
	ChatID domain.ChatID
	Entry  domain.DecryptedMessage
}

// TranscriptLoaded replaces the transcript after a chat is activated.
type TranscriptLoaded struct {
	ChatID  domain.ChatID
	Entries []domain.DecryptedMessage
}

// UnreadChanged carries the full unread map after any change.
type UnreadChanged struct{ Counts map[domain.ChatID]int }

// PresenceChanged carries the full online set after any change.
type PresenceChanged struct{ Online []domain.UserID }

// ChatRemoved reports that we were removed from a chat.
type ChatRemoved struct{ ChatID domain.ChatID }

// ChatsReloaded carries a fresh roster.
type ChatsReloaded struct{ Chats []domain.Chat }

// UsersChanged mirrors the server's users_changed notification.
type UsersChanged struct{}

func (StateChanged) isEvent()     {}
func (MessageReceived) isEvent()  {}
func (TranscriptLoaded) isEvent() {}
func (UnreadChanged) isEvent()    {}
func (PresenceChanged) isEvent()  {}
func (ChatRemoved) isEvent()      {}
func (ChatsReloaded) isEvent()    {}
func (UsersChanged) isEvent()     {}
