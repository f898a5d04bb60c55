package channel

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"cipherline/internal/domain"
	"cipherline/internal/protocol/frames"
)

// handle dispatches one inbound frame. It never blocks on the network.
func (c *Channel) handle(b []byte) {
	f, err := frames.Decode(b)
	if err != nil {
		reason := "malformed"
		switch {
		case errors.Is(err, domain.ErrUnknownFrame):
			reason = "unknown_type"
		case errors.Is(err, domain.ErrUnsupportedVersion):
			reason = "unsupported_version"
		}
		c.metrics.FrameError(reason)
		c.log.Warn("dropping inbound frame", zap.String("reason", reason), zap.Error(err))
		return
	}
	c.metrics.FrameReceived(string(f.FrameType()))

	switch f := f.(type) {
	case frames.Subscribed:
		c.mu.Lock()
		if f.ChatID == c.active {
			c.acked = true
		}
		c.mu.Unlock()
	case frames.Unsubscribed:
		c.log.Debug("unsubscribed", zap.Stringer("chat", f.ChatID))
	case frames.Message:
		c.onMessage(f)
	case frames.NewMessage:
		c.mu.Lock()
		if f.ChatID == c.active {
			c.mu.Unlock()
			return
		}
		c.unread.increment(f.ChatID)
		counts := c.unread.snapshot()
		c.mu.Unlock()
		c.emit(UnreadChanged{Counts: counts})
	case frames.UnreadUpdate:
		c.mu.Lock()
		c.unread.zero(f.ChatID)
		counts := c.unread.snapshot()
		c.mu.Unlock()
		c.emit(UnreadChanged{Counts: counts})
	case frames.PresenceSnapshot:
		c.mu.Lock()
		c.online.replace(f.OnlineUserIDs)
		online := c.online.sorted()
		c.mu.Unlock()
		c.emit(PresenceChanged{Online: online})
	case frames.Presence:
		c.mu.Lock()
		c.online.set(f.UserID, f.Online)
		online := c.online.sorted()
		c.mu.Unlock()
		c.emit(PresenceChanged{Online: online})
	case frames.RemovedFromChat:
		c.onRemoved(f.ChatID)
	case frames.ChatsChanged:
		c.work.submit(func(ctx context.Context) {
			list, err := c.ReloadChats(ctx)
			if err != nil {
				c.log.Warn("reload chats", zap.Error(err))
				return
			}
			c.emit(ChatsReloaded{Chats: list})
		})
	case frames.UsersChanged:
		c.emit(UsersChanged{})
	default:
		c.metrics.FrameError("unexpected")
		c.log.Warn("unexpected client frame from server", zap.String("type", string(f.FrameType())))
	}
}

// onMessage decrypts a message for the active chat off the read loop and
// keeps ciphertext for any other chat.
func (c *Channel) onMessage(f frames.Message) {
	m := f.Message
	if m.ChatID == 0 {
		m.ChatID = f.ChatID
	}
	c.mu.Lock()
	if f.ChatID != c.active {
		c.keepLocked(f.ChatID, m)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.work.submit(func(ctx context.Context) {
		if !c.isActive(f.ChatID) {
			c.keep(f.ChatID, m)
			return
		}
		chat, err := c.Chat(ctx, f.ChatID)
		if err != nil {
			c.log.Warn("message for unknown chat", zap.Stringer("chat", f.ChatID), zap.Error(err))
			return
		}
		entry := c.decrypt(ctx, chat, m)

		c.mu.Lock()
		if c.active != f.ChatID {
			c.mu.Unlock()
			c.keep(f.ChatID, m)
			return
		}
		c.transcript = mergeEntries(c.transcript, []domain.DecryptedMessage{entry})
		c.mu.Unlock()
		c.emit(MessageReceived{ChatID: f.ChatID, Entry: entry})

		if c.roster != nil && m.ID > 0 && m.Sender.ID != c.self {
			if err := c.roster.MarkRead(ctx, f.ChatID, m.ID); err != nil {
				c.log.Debug("mark read", zap.Stringer("chat", f.ChatID), zap.Error(err))
			}
		}
	})
}

// keep stores ciphertext for a chat that stopped being active mid-decrypt.
func (c *Channel) keep(chat domain.ChatID, m domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keepLocked(chat, m)
}

// keepLocked appends to the backlog of chat, dropping the oldest entries
// past BacklogLimit.
func (c *Channel) keepLocked(chat domain.ChatID, m domain.Message) {
	pending := append(c.backlog[chat], m)
	if limit := c.cfg.BacklogLimit; limit > 0 && len(pending) > limit {
		pending = pending[len(pending)-limit:]
	}
	c.backlog[chat] = pending
}

func (c *Channel) onRemoved(id domain.ChatID) {
	if c.groups != nil {
		c.groups.Invalidate(id)
	}
	c.mu.Lock()
	delete(c.backlog, id)
	delete(c.chats, id)
	delete(c.unread, id)
	if c.active == id {
		c.active = 0
		c.acked = false
		c.transcript = nil
	}
	c.mu.Unlock()
	c.log.Info("removed from chat", zap.Stringer("chat", id))
	c.emit(ChatRemoved{ChatID: id})
}
