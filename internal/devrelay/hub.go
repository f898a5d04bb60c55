package devrelay

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cipherline/internal/domain"
	"cipherline/internal/protocol/frames"
)

const clientSendBuffer = 64

type client struct {
	user domain.UserID
	conn *websocket.Conn
	send chan []byte

	mu         sync.Mutex
	closed     bool
	subscribed domain.ChatID
}

func (c *client) enqueue(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *client) subscription() domain.ChatID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}

func (c *client) setSubscription(id domain.ChatID) {
	c.mu.Lock()
	c.subscribed = id
	c.mu.Unlock()
}

// Hub fans relay events out to connected sockets and tracks presence.
type Hub struct {
	s   *State
	log *zap.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	online  map[domain.UserID]int
}

func newHub(s *State, log *zap.Logger) *Hub {
	return &Hub{
		s:       s,
		log:     log.Named("hub"),
		clients: make(map[*client]struct{}),
		online:  make(map[domain.UserID]int),
	}
}

// Online returns the ids with at least one open socket.
func (h *Hub) Online() []domain.UserID {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.UserID, 0, len(h.online))
	for id := range h.online {
		out = append(out, id)
	}
	return out
}

// Serve runs one socket for user until it closes.
func (h *Hub) Serve(user domain.UserID, conn *websocket.Conn) {
	c := &client{user: user, conn: conn, send: make(chan []byte, clientSendBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.online[user]++
	first := h.online[user] == 1
	h.mu.Unlock()

	go h.writeLoop(c)

	h.push(c, frames.PresenceSnapshot{OnlineUserIDs: h.Online()})
	if first {
		h.broadcast(frames.Presence{UserID: user, Online: true}, user)
	}
	h.log.Debug("socket opened", zap.Stringer("user", user))

	h.readLoop(c)

	h.mu.Lock()
	delete(h.clients, c)
	h.online[user]--
	last := h.online[user] == 0
	if last {
		delete(h.online, user)
	}
	h.mu.Unlock()

	c.close()
	if last {
		h.broadcast(frames.Presence{UserID: user, Online: false}, user)
	}
	h.log.Debug("socket closed", zap.Stringer("user", user))
}

// Close terminates every open socket.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.conn.Close()
	}
}

func (h *Hub) readLoop(c *client) {
	for {
		_, b, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := frames.Decode(b)
		if err != nil {
			h.log.Warn("bad frame", zap.Stringer("user", c.user), zap.Error(err))
			continue
		}
		switch f := f.(type) {
		case frames.Subscribe:
			if _, err := h.s.chat(c.user, f.ChatID); err != nil {
				h.log.Warn("subscribe rejected", zap.Stringer("chat", f.ChatID), zap.Error(err))
				continue
			}
			c.setSubscription(f.ChatID)
			h.push(c, frames.Subscribed(f))
		case frames.Unsubscribe:
			if c.subscription() == f.ChatID {
				c.setSubscription(0)
			}
			h.push(c, frames.Unsubscribed(f))
		case frames.SendMessage:
			if _, err := h.s.postMessage(c.user, f); err != nil {
				h.log.Warn("send rejected", zap.Stringer("chat", f.ChatID), zap.Error(err))
			}
		default:
			h.log.Warn("unexpected client frame", zap.String("type", string(f.FrameType())))
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	for b := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			break
		}
	}
	_ = c.conn.Close()
}

func (h *Hub) push(c *client, f frames.Frame) {
	b, err := frames.Encode(f)
	if err != nil {
		h.log.Error("encode frame", zap.Error(err))
		return
	}
	if !c.enqueue(b) {
		h.log.Warn("client send buffer full, frame dropped",
			zap.Stringer("user", c.user), zap.String("type", string(f.FrameType())))
	}
}

func (h *Hub) snapshot() []*client {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *Hub) broadcast(f frames.Frame, except domain.UserID) {
	for _, c := range h.snapshot() {
		if c.user != except {
			h.push(c, f)
		}
	}
}

func (h *Hub) notifyUsers(users []domain.UserID, f frames.Frame) {
	set := make(map[domain.UserID]struct{}, len(users))
	for _, u := range users {
		set[u] = struct{}{}
	}
	for _, c := range h.snapshot() {
		if _, ok := set[c.user]; ok {
			h.push(c, f)
		}
	}
}

// deliver sends the full message to sockets subscribed to the chat and a
// new_message notification to every other member socket.
func (h *Hub) deliver(chat domain.Chat, m domain.Message) {
	for _, c := range h.snapshot() {
		if !chat.HasMember(c.user) {
			continue
		}
		if c.subscription() == chat.ID {
			h.push(c, frames.Message{ChatID: chat.ID, Message: m})
		}
		if c.user != m.Sender.ID {
			h.push(c, frames.NewMessage{ChatID: chat.ID})
		}
	}
}
