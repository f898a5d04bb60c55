package app_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"cipherline/internal/app"
	"cipherline/internal/channel"
	"cipherline/internal/crypto"
	"cipherline/internal/devrelay"
	"cipherline/internal/domain"
)

func newWire(t *testing.T, cfg app.Config) *app.Wire {
	t.Helper()
	w, err := app.NewWire(cfg, nil)
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	return w
}

func TestWire_InitPublishAndOpenSession(t *testing.T) {
	st := devrelay.NewState(nil)
	srv := httptest.NewServer(devrelay.NewServer(st, nil).Handler())
	t.Cleanup(srv.Close)

	w := newWire(t, app.Config{
		Home:      t.TempDir(),
		Server:    srv.URL,
		Token:     st.AddUser(5, "eve"),
		UserID:    5,
		KDF:       domain.KDFScrypt,
		RateLimit: 0,
	})
	const pw = "correct horse battery"

	kp, err := w.Keys.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := w.PublishKey(context.Background(), kp); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := w.Keys.Persist(pw, kp); err != nil {
		t.Fatalf("persist: %v", err)
	}

	sess, err := w.OpenSession(pw)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	defer sess.Close()

	if sess.Self != 5 {
		t.Fatalf("self = %v", sess.Self)
	}
	if got, want := sess.Fingerprint(), crypto.Fingerprint(kp.Public); got != want {
		t.Fatalf("fingerprint = %s, want %s", got, want)
	}
	if sess.Channel.State() != channel.Connecting {
		t.Fatalf("channel state = %v before Run", sess.Channel.State())
	}
	peer, err := sess.Peers.Fetch(context.Background(), 5)
	if err != nil || peer.PublicKey != kp.Public {
		t.Fatalf("published key not fetchable: %+v, %v", peer, err)
	}

	if _, err := w.OpenSession("wrong password"); !errors.Is(err, domain.ErrWrongPassword) {
		t.Fatalf("want ErrWrongPassword, got %v", err)
	}
}

func TestWire_OpenSessionNeedsServer(t *testing.T) {
	w := newWire(t, app.Config{Home: t.TempDir(), UserID: 1})
	if w.Relay != nil {
		t.Fatalf("relay client built without a server")
	}
	if _, err := w.OpenSession("whatever-password"); err == nil {
		t.Fatalf("expected error without server")
	}
}

func TestWire_RegisterChecksPasswordBeforePublishing(t *testing.T) {
	st := devrelay.NewState(nil)
	srv := httptest.NewServer(devrelay.NewServer(st, nil).Handler())
	t.Cleanup(srv.Close)

	w := newWire(t, app.Config{
		Home:   t.TempDir(),
		Server: srv.URL,
		Token:  st.AddUser(6, "frank"),
		UserID: 6,
		KDF:    domain.KDFScrypt,
	})
	ctx := context.Background()

	if _, err := w.Register(ctx, "short"); !errors.Is(err, domain.ErrWeakPassword) {
		t.Fatalf("want ErrWeakPassword, got %v", err)
	}
	if _, err := w.Relay.FetchPublicKey(ctx, 6); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("weak password must not publish a key: %v", err)
	}
	if ok, _ := w.Keys.HasKeypair(); ok {
		t.Fatal("weak password must not store a key")
	}

	kp, err := w.Register(ctx, "correct horse battery")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	rec, err := w.Relay.FetchPublicKey(ctx, 6)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	pub, err := crypto.UnmarshalPublicJWK(rec.PublicKeyJWK)
	if err != nil || pub != kp.Public {
		t.Fatalf("published key mismatch: %v", err)
	}
	if ok, _ := w.Keys.HasKeypair(); !ok {
		t.Fatal("key not stored")
	}
}
