package relay

import (
	"context"
	"net/url"
	"strconv"

	"cipherline/internal/domain"
)

type unreadEntry struct {
	ChatID      domain.ChatID `json:"chat_id"`
	UnreadCount int           `json:"unread_count"`
}

func (c *HTTP) FetchChats(ctx context.Context) ([]domain.Chat, error) {
	var out []domain.Chat
	if err := c.getJSON(ctx, "/chats/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTP) FetchUnreadCounts(ctx context.Context) (map[domain.ChatID]int, error) {
	var entries []unreadEntry
	if err := c.getJSON(ctx, "/chats/unread-counts", &entries); err != nil {
		return nil, err
	}
	out := make(map[domain.ChatID]int, len(entries))
	for _, e := range entries {
		out[e.ChatID] = e.UnreadCount
	}
	return out, nil
}

func (c *HTTP) FetchMessages(ctx context.Context, chat domain.ChatID) ([]domain.Message, error) {
	var out []domain.Message
	if err := c.getJSON(ctx, "/chats/"+chat.String()+"/messages", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTP) MarkRead(ctx context.Context, chat domain.ChatID, lastMessageID int64) error {
	q := url.Values{"last_read_message_id": {strconv.FormatInt(lastMessageID, 10)}}
	return c.postJSON(ctx, "/chats/"+chat.String()+"/read-state?"+q.Encode(), nil, nil)
}
