package channel_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"cipherline/internal/channel"
	"cipherline/internal/crypto"
	"cipherline/internal/devrelay"
	"cipherline/internal/domain"
	"cipherline/internal/protocol/frames"
)

type world struct {
	state *devrelay.State
	x, y  domain.Chat
	keys  *fixedKeys
}

func newWorld() *world {
	st := devrelay.NewState(nil)
	st.AddUser(1, "alice")
	st.AddUser(2, "bob")
	return &world{
		state: st,
		x:     st.CreateChat(domain.ChatGroup, "x", 1, 1, 2),
		y:     st.CreateChat(domain.ChatGroup, "y", 1, 1, 2),
		keys:  newFixedKeys(),
	}
}

func (w *world) channel(conn channel.Conn, opts ...channel.Option) *channel.Channel {
	opts = append([]channel.Option{channel.WithConfig(testConfig())}, opts...)
	return channel.New(1, fakeDialer{conn: conn}, w.keys, w.state.As(1), opts...)
}

func TestSetActiveChat_SwitchSendsOneUnsubscribeThenSubscribe(t *testing.T) {
	w := newWorld()
	conn := newFakeConn()
	ch := w.channel(conn)
	run(t, ch)
	ctx := context.Background()

	if err := ch.SetActiveChat(ctx, w.x.ID); err != nil {
		t.Fatalf("activate x: %v", err)
	}
	conn.reset()
	if err := ch.SetActiveChat(ctx, w.y.ID); err != nil {
		t.Fatalf("activate y: %v", err)
	}
	if err := ch.SetActiveChat(ctx, w.y.ID); err != nil {
		t.Fatalf("re-activate y: %v", err)
	}

	want := []frames.Frame{frames.Unsubscribe{ChatID: w.x.ID}, frames.Subscribe{ChatID: w.y.ID}}
	if got := conn.frames(); !reflect.DeepEqual(got, want) {
		t.Fatalf("sent %#v, want %#v", got, want)
	}
	if ch.Active() != w.y.ID {
		t.Fatalf("active = %v", ch.Active())
	}
}

func TestRun_FlushesQueueInOrder(t *testing.T) {
	w := newWorld()
	conn := newFakeConn()
	ch := w.channel(conn)
	ctx := context.Background()

	if ch.State() != channel.Connecting {
		t.Fatalf("initial state = %v", ch.State())
	}
	if err := ch.SetActiveChat(ctx, w.x.ID); err != nil {
		t.Fatalf("activate while connecting: %v", err)
	}
	if err := ch.Send(ctx, w.x.ID, "queued hello"); err != nil {
		t.Fatalf("send while connecting: %v", err)
	}
	if n := len(conn.frames()); n != 0 {
		t.Fatalf("%d frames written before open", n)
	}

	run(t, ch)

	got := conn.frames()
	if len(got) != 3 {
		t.Fatalf("sent %d frames, want 3: %#v", len(got), got)
	}
	if got[0] != frames.Frame(frames.Subscribe{ChatID: w.x.ID}) {
		t.Fatalf("frame 0 = %#v", got[0])
	}
	sm, ok := got[1].(frames.SendMessage)
	if !ok || sm.ChatID != w.x.ID {
		t.Fatalf("frame 1 = %#v", got[1])
	}
	if sm.Content != nil || sm.ClientID == "" || sm.ContentType != domain.ContentText {
		t.Fatalf("send_message = %+v", sm)
	}
	text, err := crypto.DecryptText(w.keys.key, domain.Sealed{Ciphertext: sm.Ciphertext, Nonce: sm.Nonce, Algo: sm.Algo})
	if err != nil || text != "queued hello" {
		t.Fatalf("decrypt = %q, %v", text, err)
	}
	if got[2] != frames.Frame(frames.Subscribe{ChatID: w.x.ID}) {
		t.Fatalf("open must re-subscribe the active chat, got %#v", got[2])
	}
}

func TestRun_NoDuplicateSubscribeWhenQueueEndsWithIt(t *testing.T) {
	w := newWorld()
	conn := newFakeConn()
	ch := w.channel(conn)

	if err := ch.SetActiveChat(context.Background(), w.x.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	run(t, ch)

	want := []frames.Frame{frames.Subscribe{ChatID: w.x.ID}}
	if got := conn.frames(); !reflect.DeepEqual(got, want) {
		t.Fatalf("sent %#v, want %#v", got, want)
	}
}

func TestSend_ClosedChannelFails(t *testing.T) {
	w := newWorld()
	conn := newFakeConn()
	ch := w.channel(conn)
	r := run(t, ch)

	conn.Close()
	if err := r.wait(); err != nil {
		t.Fatalf("run after server hang-up: %v", err)
	}
	if ch.State() != channel.Closed {
		t.Fatalf("state = %v, want closed", ch.State())
	}
	if err := ch.Send(context.Background(), w.x.ID, "late"); !errors.Is(err, domain.ErrDeliveryFailed) {
		t.Fatalf("want ErrDeliveryFailed, got %v", err)
	}
}

func TestRun_DialFailureCloses(t *testing.T) {
	w := newWorld()
	ch := w.channel(nil)
	if err := ch.Run(context.Background()); err == nil {
		t.Fatalf("expected dial error")
	}
	if ch.State() != channel.Closed {
		t.Fatalf("state = %v", ch.State())
	}
}

func TestSubscribe_RetriedOnceWithoutAck(t *testing.T) {
	w := newWorld()
	conn := newFakeConn()
	cfg := testConfig()
	cfg.AckTimeout = 20 * time.Millisecond
	ch := w.channel(conn, channel.WithConfig(cfg))

	if err := ch.SetActiveChat(context.Background(), w.x.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	run(t, ch)

	waitFor(t, "subscribe retry", func() bool { return len(conn.frames()) == 2 })
	for i, f := range conn.frames() {
		if f != frames.Frame(frames.Subscribe{ChatID: w.x.ID}) {
			t.Fatalf("frame %d = %#v", i, f)
		}
	}
	time.Sleep(60 * time.Millisecond)
	if n := len(conn.frames()); n != 2 {
		t.Fatalf("subscribe retried more than once: %d frames", n)
	}
}

func TestSubscribe_AckSuppressesRetry(t *testing.T) {
	w := newWorld()
	conn := newFakeConn()
	conn.autoAck = true
	cfg := testConfig()
	cfg.AckTimeout = 20 * time.Millisecond
	ch := w.channel(conn, channel.WithConfig(cfg))

	if err := ch.SetActiveChat(context.Background(), w.x.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	run(t, ch)
	waitFor(t, "ack", ch.Subscribed)

	time.Sleep(60 * time.Millisecond)
	if n := len(conn.frames()); n != 1 {
		t.Fatalf("sent %d frames after ack, want 1", n)
	}
}

func TestUnread_CountsUntilActivated(t *testing.T) {
	w := newWorld()
	conn := newFakeConn()
	ch := w.channel(conn)
	run(t, ch)

	for i := 0; i < 3; i++ {
		conn.push(t, frames.NewMessage{ChatID: w.x.ID})
	}
	waitFor(t, "three unread", func() bool { return ch.Unread()[w.x.ID] == 3 })

	if err := ch.SetActiveChat(context.Background(), w.x.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if n := ch.Unread()[w.x.ID]; n != 0 {
		t.Fatalf("unread after activation = %d", n)
	}

	// Notifications for the active chat do not count.
	conn.push(t, frames.NewMessage{ChatID: w.x.ID})
	conn.push(t, frames.Presence{UserID: 9, Online: true})
	waitFor(t, "marker", func() bool { return len(ch.Online()) == 1 })
	if n := ch.Unread()[w.x.ID]; n != 0 {
		t.Fatalf("active chat unread = %d", n)
	}
}

func TestUnread_UnreadUpdateZeroes(t *testing.T) {
	w := newWorld()
	conn := newFakeConn()
	ch := w.channel(conn)
	run(t, ch)

	conn.push(t, frames.NewMessage{ChatID: w.y.ID})
	conn.push(t, frames.NewMessage{ChatID: w.y.ID})
	waitFor(t, "two unread", func() bool { return ch.Unread()[w.y.ID] == 2 })
	conn.push(t, frames.UnreadUpdate{ChatID: w.y.ID})
	waitFor(t, "zeroed", func() bool { return ch.Unread()[w.y.ID] == 0 })
}

type countsRoster struct {
	*devrelay.View
	counts map[domain.ChatID]int
}

func (r countsRoster) FetchUnreadCounts(context.Context) (map[domain.ChatID]int, error) {
	return r.counts, nil
}

func TestReconcile_ServerCountsWin(t *testing.T) {
	w := newWorld()
	conn := newFakeConn()
	roster := countsRoster{View: w.state.As(1), counts: map[domain.ChatID]int{w.x.ID: 1, w.y.ID: 4}}
	ch := channel.New(1, fakeDialer{conn: conn}, w.keys, roster, channel.WithConfig(testConfig()))
	run(t, ch)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		conn.push(t, frames.NewMessage{ChatID: w.x.ID})
	}
	waitFor(t, "three unread", func() bool { return ch.Unread()[w.x.ID] == 3 })
	if err := ch.SetActiveChat(ctx, w.y.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	if err := ch.Reconcile(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	want := map[domain.ChatID]int{w.x.ID: 1, w.y.ID: 0}
	if got := ch.Unread(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unread = %v, want %v", got, want)
	}
}

func TestPresence_SnapshotThenEdits(t *testing.T) {
	w := newWorld()
	conn := newFakeConn()
	ch := w.channel(conn)
	run(t, ch)

	conn.push(t, frames.PresenceSnapshot{OnlineUserIDs: []domain.UserID{3, 2}})
	conn.push(t, frames.Presence{UserID: 4, Online: true})
	conn.push(t, frames.Presence{UserID: 2, Online: false})

	want := []domain.UserID{3, 4}
	waitFor(t, "presence", func() bool { return reflect.DeepEqual(ch.Online(), want) })

	conn.push(t, frames.PresenceSnapshot{OnlineUserIDs: []domain.UserID{7}})
	waitFor(t, "snapshot replaces", func() bool { return reflect.DeepEqual(ch.Online(), []domain.UserID{7}) })
}

func TestInbound_BadFramesDoNotStopTheLoop(t *testing.T) {
	w := newWorld()
	conn := newFakeConn()
	ch := w.channel(conn)
	run(t, ch)
	ctx := context.Background()

	if err := ch.SetActiveChat(ctx, w.x.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	waitEvent(t, ch, func(e channel.Event) bool {
		tl, ok := e.(channel.TranscriptLoaded)
		return ok && tl.ChatID == w.x.ID
	})

	good := w.keys.seal(t, "still here")
	conn.pushRaw("not json")
	conn.pushRaw(`{"v":1,"type":"bogus"}`)
	conn.pushRaw(`{"v":2,"type":"presence","user_id":8,"online":true}`)
	conn.push(t, frames.Message{ChatID: w.x.ID, Message: domain.Message{
		ID: 100, ChatID: w.x.ID, Sender: domain.Participant{ID: 2},
		Ciphertext: []byte("garbage-garbage-garbage"), Nonce: make([]byte, 12), Algo: domain.AlgChaCha20Poly1305,
	}})
	conn.push(t, frames.Message{ChatID: w.x.ID, Message: domain.Message{
		ID: 101, ChatID: w.x.ID, Sender: domain.Participant{ID: 2},
		Ciphertext: good.Ciphertext, Nonce: good.Nonce, Algo: good.Algo,
	}})
	conn.push(t, frames.Presence{UserID: 5, Online: true})

	waitFor(t, "presence after bad frames", func() bool {
		return reflect.DeepEqual(ch.Online(), []domain.UserID{5})
	})
	waitFor(t, "two transcript entries", func() bool { return len(ch.Transcript()) == 2 })

	tr := ch.Transcript()
	if !errors.Is(tr[0].Err, domain.ErrDecryptionFailed) {
		t.Fatalf("entry 0 err = %v", tr[0].Err)
	}
	if tr[1].Err != nil || tr[1].Text != "still here" {
		t.Fatalf("entry 1 = %+v", tr[1])
	}
}

func TestMessages_InactiveChatDecryptedOnActivation(t *testing.T) {
	w := newWorld()
	conn := newFakeConn()
	ch := w.channel(conn)
	run(t, ch)

	s := w.keys.seal(t, "while away")
	conn.push(t, frames.Message{ChatID: w.y.ID, Message: domain.Message{
		ID: 7, ChatID: w.y.ID, Sender: domain.Participant{ID: 2},
		Ciphertext: s.Ciphertext, Nonce: s.Nonce, Algo: s.Algo,
	}})
	conn.push(t, frames.Presence{UserID: 2, Online: true})
	waitFor(t, "marker", func() bool { return len(ch.Online()) == 1 })
	if n := w.keys.callCount(); n != 0 {
		t.Fatalf("inactive chat triggered %d key resolutions", n)
	}

	if err := ch.SetActiveChat(context.Background(), w.y.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	e := waitEvent(t, ch, func(e channel.Event) bool {
		tl, ok := e.(channel.TranscriptLoaded)
		return ok && tl.ChatID == w.y.ID
	}).(channel.TranscriptLoaded)
	if len(e.Entries) != 1 || e.Entries[0].Text != "while away" {
		t.Fatalf("transcript = %+v", e.Entries)
	}
}

func TestMessages_StaleDecryptIsDiscarded(t *testing.T) {
	w := newWorld()
	w.keys.gateChat = w.x.ID
	w.keys.gate = make(chan struct{})
	w.keys.started = make(chan struct{}, 1)
	conn := newFakeConn()
	ch := w.channel(conn)
	run(t, ch)
	ctx := context.Background()

	if err := ch.SetActiveChat(ctx, w.x.ID); err != nil {
		t.Fatalf("activate x: %v", err)
	}
	s := w.keys.seal(t, "for x")
	conn.push(t, frames.Message{ChatID: w.x.ID, Message: domain.Message{
		ID: 1, ChatID: w.x.ID, Sender: domain.Participant{ID: 2},
		Ciphertext: s.Ciphertext, Nonce: s.Nonce, Algo: s.Algo,
	}})
	select {
	case <-w.keys.started:
	case <-time.After(3 * time.Second):
		t.Fatalf("decrypt never started")
	}

	if err := ch.SetActiveChat(ctx, w.y.ID); err != nil {
		t.Fatalf("activate y: %v", err)
	}
	close(w.keys.gate)
	waitEvent(t, ch, func(e channel.Event) bool {
		tl, ok := e.(channel.TranscriptLoaded)
		return ok && tl.ChatID == w.y.ID
	})
	if tr := ch.Transcript(); len(tr) != 0 {
		t.Fatalf("chat y transcript shows stale entries: %+v", tr)
	}

	if err := ch.SetActiveChat(ctx, w.x.ID); err != nil {
		t.Fatalf("re-activate x: %v", err)
	}
	waitFor(t, "kept message", func() bool {
		tr := ch.Transcript()
		return len(tr) == 1 && tr[0].Text == "for x"
	})
}

func TestMessages_KeptBacklogIsCapped(t *testing.T) {
	w := newWorld()
	w.keys.gateChat = w.x.ID
	w.keys.gate = make(chan struct{})
	w.keys.started = make(chan struct{}, 1)
	cfg := testConfig()
	cfg.BacklogLimit = 2
	conn := newFakeConn()
	ch := w.channel(conn, channel.WithConfig(cfg))
	run(t, ch)
	ctx := context.Background()

	if err := ch.SetActiveChat(ctx, w.x.ID); err != nil {
		t.Fatalf("activate x: %v", err)
	}
	for i, text := range []string{"m1", "m2", "m3", "m4"} {
		s := w.keys.seal(t, text)
		conn.push(t, frames.Message{ChatID: w.x.ID, Message: domain.Message{
			ID: int64(i + 1), ChatID: w.x.ID, Sender: domain.Participant{ID: 2},
			Ciphertext: s.Ciphertext, Nonce: s.Nonce, Algo: s.Algo,
		}})
	}
	select {
	case <-w.keys.started:
	case <-time.After(3 * time.Second):
		t.Fatalf("decrypt never started")
	}

	if err := ch.SetActiveChat(ctx, w.y.ID); err != nil {
		t.Fatalf("activate y: %v", err)
	}
	close(w.keys.gate)
	waitEvent(t, ch, func(e channel.Event) bool {
		tl, ok := e.(channel.TranscriptLoaded)
		return ok && tl.ChatID == w.y.ID
	})

	if err := ch.SetActiveChat(ctx, w.x.ID); err != nil {
		t.Fatalf("re-activate x: %v", err)
	}
	loaded := waitEvent(t, ch, func(e channel.Event) bool {
		tl, ok := e.(channel.TranscriptLoaded)
		return ok && tl.ChatID == w.x.ID
	}).(channel.TranscriptLoaded)
	var got []string
	for _, e := range loaded.Entries {
		got = append(got, e.Text)
	}
	if !reflect.DeepEqual(got, []string{"m3", "m4"}) {
		t.Fatalf("kept entries = %v, want the newest two", got)
	}
}

func TestRemovedFromChat_ClearsStateAndKey(t *testing.T) {
	w := newWorld()
	conn := newFakeConn()
	groups := &recordingGroups{}
	ch := w.channel(conn, channel.WithGroupKeys(groups))
	run(t, ch)

	if err := ch.SetActiveChat(context.Background(), w.x.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	conn.push(t, frames.RemovedFromChat{ChatID: w.x.ID})
	waitEvent(t, ch, func(e channel.Event) bool {
		r, ok := e.(channel.ChatRemoved)
		return ok && r.ChatID == w.x.ID
	})
	if ch.Active() != 0 {
		t.Fatalf("active = %v after removal", ch.Active())
	}
	if got := groups.list(); !reflect.DeepEqual(got, []domain.ChatID{w.x.ID}) {
		t.Fatalf("invalidated = %v", got)
	}
}

func TestChatsChanged_InvalidatesChangedGroups(t *testing.T) {
	w := newWorld()
	w.state.AddUser(3, "carol")
	conn := newFakeConn()
	groups := &recordingGroups{}
	ch := w.channel(conn, channel.WithGroupKeys(groups))
	run(t, ch)
	ctx := context.Background()

	if _, err := ch.ReloadChats(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, err := w.state.SetMembers(w.x.ID, 1, 2, 3); err != nil {
		t.Fatalf("set members: %v", err)
	}
	conn.push(t, frames.ChatsChanged{})

	e := waitEvent(t, ch, func(e channel.Event) bool {
		_, ok := e.(channel.ChatsReloaded)
		return ok
	}).(channel.ChatsReloaded)
	if len(e.Chats) != 2 {
		t.Fatalf("reloaded %d chats", len(e.Chats))
	}
	if got := groups.list(); !reflect.DeepEqual(got, []domain.ChatID{w.x.ID}) {
		t.Fatalf("invalidated = %v", got)
	}
}
