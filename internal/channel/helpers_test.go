package channel_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"cipherline/internal/channel"
	"cipherline/internal/crypto"
	"cipherline/internal/domain"
	"cipherline/internal/protocol/frames"
)

// fakeConn is an in-memory Conn. Frames pushed by the test are read by the
// channel; frames written by the channel are recorded.
type fakeConn struct {
	in      chan []byte
	closed  chan struct{}
	once    sync.Once
	autoAck bool

	mu   sync.Mutex
	sent []frames.Frame
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 64), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case b := <-c.in:
		return b, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(b []byte) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	f, err := frames.Decode(b)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.sent = append(c.sent, f)
	c.mu.Unlock()
	if sub, ok := f.(frames.Subscribe); ok && c.autoAck {
		c.in <- mustEncode(frames.Subscribed(sub))
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(t *testing.T, f frames.Frame) {
	t.Helper()
	c.in <- mustEncode(f)
}

func (c *fakeConn) pushRaw(b string) { c.in <- []byte(b) }

func (c *fakeConn) frames() []frames.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]frames.Frame(nil), c.sent...)
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.sent = nil
	c.mu.Unlock()
}

type fakeDialer struct{ conn channel.Conn }

func (d fakeDialer) Dial(context.Context) (channel.Conn, error) {
	if d.conn == nil {
		return nil, errors.New("refused")
	}
	return d.conn, nil
}

// fixedKeys resolves every chat to the same key. When gate is set, calls
// for gateChat block until it is closed.
type fixedKeys struct {
	key      []byte
	gateChat domain.ChatID
	gate     chan struct{}
	started  chan struct{}

	mu    sync.Mutex
	calls int
}

func newFixedKeys() *fixedKeys {
	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return &fixedKeys{key: key}
}

func (k *fixedKeys) MessageKey(ctx context.Context, chat domain.Chat) ([]byte, error) {
	k.mu.Lock()
	k.calls++
	k.mu.Unlock()
	if k.gate != nil && chat.ID == k.gateChat {
		select {
		case k.started <- struct{}{}:
		default:
		}
		select {
		case <-k.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return k.key, nil
}

func (k *fixedKeys) AttachmentCandidates(context.Context, domain.Chat, domain.UserID) []domain.KeyCandidate {
	return []domain.KeyCandidate{{Label: "fixed", Key: k.key}}
}

func (k *fixedKeys) callCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.calls
}

func (k *fixedKeys) seal(t *testing.T, text string) domain.Sealed {
	t.Helper()
	s, err := crypto.EncryptText(k.key, text)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	return s
}

// recordingGroups records invalidations.
type recordingGroups struct {
	mu          sync.Mutex
	invalidated []domain.ChatID
}

func (g *recordingGroups) EnsureGroupKey(context.Context, domain.Chat) (domain.GroupKey, error) {
	return domain.GroupKey{}, domain.ErrKeyUnavailable
}

func (g *recordingGroups) Cached(domain.ChatID) (domain.GroupKey, bool) { return domain.GroupKey{}, false }

func (g *recordingGroups) Invalidate(chat domain.ChatID) {
	g.mu.Lock()
	g.invalidated = append(g.invalidated, chat)
	g.mu.Unlock()
}

func (g *recordingGroups) list() []domain.ChatID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.ChatID(nil), g.invalidated...)
}

type runner struct {
	cancel context.CancelFunc
	done   chan error
	once   sync.Once
	err    error
}

func (r *runner) wait() error {
	r.once.Do(func() { r.err = <-r.done })
	return r.err
}

// run starts ch.Run and waits for Open.
func run(t *testing.T, ch *channel.Channel) *runner {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r := &runner{cancel: cancel, done: make(chan error, 1)}
	go func() { r.done <- ch.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = r.wait()
	})
	waitFor(t, "channel open", func() bool { return ch.State() == channel.Open })
	return r
}

func testConfig() channel.Config {
	return channel.Config{EventBuffer: 1024, BacklogLimit: 100}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// waitEvent drains events until match returns true.
func waitEvent(t *testing.T, ch *channel.Channel, match func(channel.Event) bool) channel.Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case e := <-ch.Events():
			if match(e) {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for event")
			return nil
		}
	}
}

func mustEncode(f frames.Frame) []byte {
	b, err := frames.Encode(f)
	if err != nil {
		panic(err)
	}
	return b
}
