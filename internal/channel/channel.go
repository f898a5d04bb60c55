package channel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cipherline/internal/crypto"
	"cipherline/internal/domain"
	"cipherline/internal/metrics"
	"cipherline/internal/protocol/frames"
	"cipherline/internal/services/attachment"
)

var errAlreadyRunning = errors.New("channel: already running")

// Channel is one session's sync channel.
type Channel struct {
	self    domain.UserID
	dialer  Dialer
	keys    domain.KeyResolver
	groups  domain.GroupKeys
	roster  domain.Roster
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics

	work   *pipeline
	events chan Event

	mu         sync.Mutex
	running    bool
	state      State
	conn       Conn
	queue      []frames.Frame
	active     domain.ChatID
	acked      bool
	chats      map[domain.ChatID]domain.Chat
	backlog    map[domain.ChatID][]domain.Message
	transcript []domain.DecryptedMessage
	unread     unreadCounts
	online     presenceSet
}

// Option configures a Channel.
type Option func(*Channel)

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option { return func(c *Channel) { c.cfg = cfg } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(c *Channel) { c.log = l } }

// WithMetrics sets the collectors. A nil Metrics is valid.
func WithMetrics(m *metrics.Metrics) Option { return func(c *Channel) { c.metrics = m } }

// WithGroupKeys lets the channel drop cached group keys when membership
// changes or we are removed from a chat.
func WithGroupKeys(g domain.GroupKeys) Option { return func(c *Channel) { c.groups = g } }

// New returns a Channel in the Connecting state. Nothing is dialed until Run.
func New(self domain.UserID, dialer Dialer, keys domain.KeyResolver, roster domain.Roster, opts ...Option) *Channel {
	c := &Channel{
		self:    self,
		dialer:  dialer,
		keys:    keys,
		roster:  roster,
		cfg:     DefaultConfig(),
		log:     zap.NewNop(),
		work:    newPipeline(),
		state:   Connecting,
		chats:   make(map[domain.ChatID]domain.Chat),
		backlog: make(map[domain.ChatID][]domain.Message),
		unread:  make(unreadCounts),
		online:  make(presenceSet),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.cfg.EventBuffer <= 0 {
		c.cfg.EventBuffer = DefaultConfig().EventBuffer
	}
	c.events = make(chan Event, c.cfg.EventBuffer)
	return c
}

// Events returns the event stream. It is never closed.
func (c *Channel) Events() <-chan Event { return c.events }

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active returns the active chat, zero if none.
func (c *Channel) Active() domain.ChatID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Subscribed reports whether the server acknowledged the active chat's
// subscription on the current socket.
func (c *Channel) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Open && c.active != 0 && c.acked
}

// Unread returns a copy of the unread counters.
func (c *Channel) Unread() map[domain.ChatID]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread.snapshot()
}

// Online returns the online user ids in ascending order.
func (c *Channel) Online() []domain.UserID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online.sorted()
}

// Transcript returns a copy of the active chat's transcript.
func (c *Channel) Transcript() []domain.DecryptedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.DecryptedMessage(nil), c.transcript...)
}

// Run dials, flushes the outbound queue and processes inbound frames until
// the socket ends or ctx is cancelled. The Channel is Closed on return.
func (c *Channel) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errAlreadyRunning
	}
	c.running = true
	c.state = Connecting
	c.mu.Unlock()
	c.emit(StateChanged{State: Connecting})

	defer func() {
		c.mu.Lock()
		c.running = false
		c.state = Closed
		c.conn = nil
		c.mu.Unlock()
		c.emit(StateChanged{State: Closed})
	}()

	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		c.log.Warn("dial failed", zap.Error(err))
		return fmt.Errorf("channel: dial: %w", err)
	}
	defer conn.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := c.open(conn); err != nil {
		return err
	}
	c.log.Info("channel open", zap.Stringer("active", c.Active()))
	c.emit(StateChanged{State: Open})

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		<-runCtx.Done()
		conn.Close()
	}()
	go func() {
		defer wg.Done()
		c.work.run(runCtx)
	}()
	go func() {
		defer wg.Done()
		c.maintain(runCtx)
	}()
	defer wg.Wait()
	defer cancel()

	for {
		b, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Info("channel closed", zap.Error(err))
			return nil
		}
		c.handle(b)
	}
}

// open flushes the queue in FIFO order and re-subscribes the active chat
// unless the queue already ended with that subscribe.
func (c *Channel) open(conn Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	queued := c.queue
	c.queue = nil
	c.metrics.SetQueueDepth(0)
	for _, f := range queued {
		if err := c.write(conn, f); err != nil {
			return fmt.Errorf("%w: flush: %v", domain.ErrDeliveryFailed, err)
		}
	}
	if c.active != 0 {
		if !endsWithSubscribe(queued, c.active) {
			if err := c.write(conn, frames.Subscribe{ChatID: c.active}); err != nil {
				return fmt.Errorf("%w: subscribe: %v", domain.ErrDeliveryFailed, err)
			}
		}
	}
	c.acked = false
	c.conn = conn
	c.state = Open
	if len(queued) > 0 {
		c.log.Debug("flushed outbound queue", zap.Int("frames", len(queued)))
	}
	return nil
}

func endsWithSubscribe(queued []frames.Frame, chat domain.ChatID) bool {
	if len(queued) == 0 {
		return false
	}
	sub, ok := queued[len(queued)-1].(frames.Subscribe)
	return ok && sub.ChatID == chat
}

// maintain retries the post-open subscribe once and runs periodic resync.
func (c *Channel) maintain(ctx context.Context) {
	if c.cfg.AckTimeout > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.AckTimeout):
			c.retrySubscribe()
		}
	}
	if c.cfg.ResyncInterval <= 0 {
		return
	}
	t := time.NewTicker(c.cfg.ResyncInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.Reconcile(ctx); err != nil && ctx.Err() == nil {
				c.log.Warn("unread resync failed", zap.Error(err))
			}
		}
	}
}

func (c *Channel) retrySubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Open || c.acked || c.active == 0 {
		return
	}
	c.log.Debug("subscribe not acknowledged, retrying", zap.Stringer("chat", c.active))
	if err := c.write(c.conn, frames.Subscribe{ChatID: c.active}); err != nil {
		c.log.Warn("subscribe retry failed", zap.Error(err))
	}
}

// send writes f when Open, queues it when Connecting and fails when Closed.
func (c *Channel) send(f frames.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(f)
}

func (c *Channel) sendLocked(f frames.Frame) error {
	switch c.state {
	case Connecting:
		c.queue = append(c.queue, f)
		c.metrics.SetQueueDepth(len(c.queue))
		return nil
	case Open:
		if err := c.write(c.conn, f); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, err)
		}
		return nil
	default:
		return domain.ErrDeliveryFailed
	}
}

func (c *Channel) write(conn Conn, f frames.Frame) error {
	b, err := frames.Encode(f)
	if err != nil {
		return err
	}
	return conn.WriteMessage(b)
}

// SetActiveChat makes id the active chat. Switching from X to Y sends
// exactly one unsubscribe(X) followed by one subscribe(Y). Zero clears the
// active chat. The transcript is loaded asynchronously and announced with
// TranscriptLoaded.
func (c *Channel) SetActiveChat(ctx context.Context, id domain.ChatID) error {
	c.mu.Lock()
	if id == c.active {
		c.mu.Unlock()
		return nil
	}
	prev := c.active
	c.active = id
	c.acked = false
	c.transcript = nil
	var pending []domain.Message
	if id != 0 {
		pending = c.backlog[id]
		delete(c.backlog, id)
		c.unread.zero(id)
	}

	var err error
	if prev != 0 {
		err = c.sendLocked(frames.Unsubscribe{ChatID: prev})
	}
	if id != 0 {
		if serr := c.sendLocked(frames.Subscribe{ChatID: id}); err == nil {
			err = serr
		}
	}
	counts := c.unread.snapshot()
	c.mu.Unlock()

	c.emit(UnreadChanged{Counts: counts})
	if id != 0 {
		c.work.submit(func(ctx context.Context) { c.load(ctx, id, pending) })
	}
	return err
}

// Send encrypts text under the chat key and sends it. Plaintext is never
// put on the wire.
func (c *Channel) Send(ctx context.Context, chatID domain.ChatID, text string) error {
	chat, err := c.Chat(ctx, chatID)
	if err != nil {
		return err
	}
	key, err := c.keys.MessageKey(ctx, chat)
	if err != nil {
		return err
	}
	sealed, err := crypto.EncryptText(key, text)
	if err != nil {
		return err
	}
	return c.send(frames.SendMessage{
		ChatID:      chatID,
		ClientID:    uuid.NewString(),
		Ciphertext:  sealed.Ciphertext,
		Nonce:       sealed.Nonce,
		Algo:        sealed.Algo,
		ContentType: domain.ContentText,
	})
}

// SendAttachment announces an uploaded attachment in a chat.
func (c *Channel) SendAttachment(ctx context.Context, chatID domain.ChatID, att domain.Attachment) error {
	if _, err := c.Chat(ctx, chatID); err != nil {
		return err
	}
	id := att.ID
	return c.send(frames.SendMessage{
		ChatID:       chatID,
		ClientID:     uuid.NewString(),
		ContentType:  attachment.ContentType(att.MimeType),
		AttachmentID: &id,
	})
}

// Chat returns a chat from the roster cache, reloading once on a miss.
func (c *Channel) Chat(ctx context.Context, id domain.ChatID) (domain.Chat, error) {
	c.mu.Lock()
	chat, ok := c.chats[id]
	c.mu.Unlock()
	if ok {
		return chat, nil
	}
	if _, err := c.ReloadChats(ctx); err != nil {
		return domain.Chat{}, err
	}
	c.mu.Lock()
	chat, ok = c.chats[id]
	c.mu.Unlock()
	if !ok {
		return domain.Chat{}, fmt.Errorf("chat %d: %w", id, domain.ErrNotFound)
	}
	return chat, nil
}

// ReloadChats refreshes the roster. Group chats whose membership changed
// have their cached key invalidated.
func (c *Channel) ReloadChats(ctx context.Context) ([]domain.Chat, error) {
	if c.roster == nil {
		return nil, fmt.Errorf("channel: no roster: %w", domain.ErrNotFound)
	}
	list, err := c.roster.FetchChats(ctx)
	if err != nil {
		return nil, err
	}
	var stale []domain.ChatID
	c.mu.Lock()
	next := make(map[domain.ChatID]domain.Chat, len(list))
	for _, ch := range list {
		if old, ok := c.chats[ch.ID]; ok && ch.IsGroup() && !old.SameMembers(ch) {
			stale = append(stale, ch.ID)
		}
		next[ch.ID] = ch
	}
	for id, old := range c.chats {
		if _, ok := next[id]; !ok && old.IsGroup() {
			stale = append(stale, id)
		}
	}
	c.chats = next
	c.mu.Unlock()

	if c.groups != nil {
		for _, id := range stale {
			c.groups.Invalidate(id)
		}
	}
	return list, nil
}

// Reconcile replaces the local unread counters with the server's.
func (c *Channel) Reconcile(ctx context.Context) error {
	if c.roster == nil {
		return nil
	}
	counts, err := c.roster.FetchUnreadCounts(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.unread.replace(counts, c.active)
	snap := c.unread.snapshot()
	c.mu.Unlock()
	c.metrics.UnreadResynced()
	c.emit(UnreadChanged{Counts: snap})
	return nil
}

// load fetches history for id, merges ciphertext received while the chat
// was inactive and decrypts everything.
func (c *Channel) load(ctx context.Context, id domain.ChatID, pending []domain.Message) {
	if !c.isActive(id) {
		return
	}
	chat, err := c.Chat(ctx, id)
	if err != nil {
		c.log.Warn("load chat", zap.Stringer("chat", id), zap.Error(err))
		return
	}
	var history []domain.Message
	if c.roster != nil {
		history, err = c.roster.FetchMessages(ctx, id)
		if err != nil {
			c.log.Warn("fetch history", zap.Stringer("chat", id), zap.Error(err))
		}
	}
	msgs := mergeMessages(history, pending)

	entries := make([]domain.DecryptedMessage, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, c.decrypt(ctx, chat, m))
	}

	c.mu.Lock()
	if c.active != id {
		c.mu.Unlock()
		c.log.Debug("discarding stale transcript", zap.Stringer("chat", id))
		return
	}
	// Live messages may have landed while history was loading.
	entries = mergeEntries(entries, c.transcript)
	c.transcript = entries
	out := append([]domain.DecryptedMessage(nil), entries...)
	c.mu.Unlock()
	c.emit(TranscriptLoaded{ChatID: id, Entries: out})

	if c.roster != nil && len(out) > 0 {
		last := out[len(out)-1].Message.ID
		if err := c.roster.MarkRead(ctx, id, last); err != nil {
			c.log.Debug("mark read", zap.Stringer("chat", id), zap.Error(err))
		}
	}
}

func (c *Channel) decrypt(ctx context.Context, chat domain.Chat, m domain.Message) domain.DecryptedMessage {
	out := domain.DecryptedMessage{Message: m}
	if err := m.Validate(); err != nil {
		out.Err = err
		return out
	}
	switch {
	case m.Content != nil:
		out.Text = *m.Content
		return out
	case !m.Encrypted():
		return out
	}
	key, err := c.keys.MessageKey(ctx, chat)
	if err != nil {
		out.Err = err
		c.metrics.DecryptFailed()
		return out
	}
	text, err := crypto.DecryptText(key, m.Sealed())
	if err != nil {
		out.Err = err
		c.metrics.DecryptFailed()
		c.log.Debug("message did not decrypt",
			zap.Stringer("chat", chat.ID), zap.Int64("message", m.ID), zap.Error(err))
		return out
	}
	out.Text = text
	return out
}

func (c *Channel) isActive(id domain.ChatID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active == id
}

func (c *Channel) emit(e Event) {
	select {
	case c.events <- e:
	default:
		c.metrics.EventDropped()
		c.log.Debug("event dropped", zap.String("event", fmt.Sprintf("%T", e)))
	}
}

// mergeMessages unions a and b by message id, ascending.
func mergeMessages(a, b []domain.Message) []domain.Message {
	seen := make(map[int64]struct{}, len(a)+len(b))
	out := make([]domain.Message, 0, len(a)+len(b))
	for _, list := range [][]domain.Message{a, b} {
		for _, m := range list {
			if _, ok := seen[m.ID]; ok {
				continue
			}
			seen[m.ID] = struct{}{}
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func mergeEntries(a, b []domain.DecryptedMessage) []domain.DecryptedMessage {
	seen := make(map[int64]struct{}, len(a))
	for _, e := range a {
		seen[e.Message.ID] = struct{}{}
	}
	out := a
	for _, e := range b {
		if _, ok := seen[e.Message.ID]; ok {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Message.ID < out[j].Message.ID })
	return out
}
