package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"cipherline/internal/channel"
	"cipherline/internal/crypto"
	"cipherline/internal/domain"
	"cipherline/internal/metrics"
	"cipherline/internal/relay"
	"cipherline/internal/services/attachment"
	"cipherline/internal/services/chatkeys"
	"cipherline/internal/services/groupkey"
	"cipherline/internal/services/keystore"
	"cipherline/internal/services/peerkeys"
	"cipherline/internal/store"
)

// Wire bundles the stores, clients and services that exist before unlock.
type Wire struct {
	Config   Config
	Log      *zap.Logger
	Keys     *keystore.Service
	Relay    *relay.HTTP // nil when no server is configured
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config, log *zap.Logger) (*Wire, error) {
	if log == nil {
		log = zap.NewNop()
	}
	kdf, err := cfg.KDFParams()
	if err != nil {
		return nil, err
	}

	// File-based key record
	records := store.NewKeyRecordFileStore(cfg.Home)
	keys := keystore.New(records, keystore.WithKDF(kdf), keystore.WithLogger(log.Named("keystore")))

	reg := prometheus.NewRegistry()
	w := &Wire{
		Config:   cfg,
		Log:      log,
		Keys:     keys,
		Registry: reg,
		Metrics:  metrics.New(reg),
	}

	if cfg.Server != "" {
		httpClient := cfg.HTTP
		if httpClient == nil {
			httpClient = &http.Client{Timeout: 30 * time.Second}
		}
		w.Relay = relay.NewHTTP(cfg.Server, cfg.Token,
			relay.WithHTTPClient(httpClient),
			relay.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
			relay.WithLogger(log),
		)
	}
	return w, nil
}

// PublishKey uploads kp's public half to the directory.
func (w *Wire) PublishKey(ctx context.Context, kp domain.Keypair) error {
	if err := w.Config.RequireServer(); err != nil {
		return err
	}
	peers := peerkeys.New(domain.UserID(w.Config.UserID), kp, w.Relay, w.Log)
	defer peers.Close()
	return peers.Publish(ctx)
}

// Register creates the device keypair. The password is checked before
// anything leaves the device, and the key is published before it is stored
// so a stored key is always one the directory knows.
func (w *Wire) Register(ctx context.Context, password string) (domain.Keypair, error) {
	if err := keystore.CheckPassword(password); err != nil {
		return domain.Keypair{}, err
	}
	kp, err := w.Keys.GenerateKeypair()
	if err != nil {
		return domain.Keypair{}, err
	}
	if w.Relay != nil {
		if err := w.PublishKey(ctx, kp); err != nil {
			kp.Wipe()
			return domain.Keypair{}, fmt.Errorf("publish public key: %w", err)
		}
	} else {
		w.Log.Warn("no server configured, public key not published")
	}
	if err := w.Keys.Persist(password, kp); err != nil {
		kp.Wipe()
		return domain.Keypair{}, err
	}
	return kp, nil
}

// Session is an unlocked device: the keypair lives only here.
type Session struct {
	Self    domain.UserID
	Peers   *peerkeys.Service
	Groups  *groupkey.Manager
	Keys    *chatkeys.Resolver
	Files   *attachment.Codec
	Channel *channel.Channel

	kp domain.Keypair
}

// OpenSession unlocks the stored keypair and builds the networked services.
func (w *Wire) OpenSession(password string) (*Session, error) {
	if err := w.Config.RequireServer(); err != nil {
		return nil, err
	}
	kp, err := w.Keys.Unlock(password)
	if err != nil {
		return nil, err
	}
	wsURL, err := w.Relay.WebSocketURL()
	if err != nil {
		kp.Wipe()
		return nil, err
	}

	self := domain.UserID(w.Config.UserID)
	log := w.Log.With(zap.Stringer("user", self))

	peers := peerkeys.New(self, kp, w.Relay, log)
	groups := groupkey.New(peers, w.Relay, groupkey.Config{
		Retry:  w.Config.RetryPolicy(),
		FanOut: w.Config.GroupKey.FanOut,
	}, log, w.Metrics)
	resolver := chatkeys.New(peers, groups, log)

	chCfg := channel.DefaultConfig()
	chCfg.AckTimeout = w.Config.Channel.AckTimeout
	chCfg.ResyncInterval = w.Config.Channel.ResyncInterval
	ch := channel.New(self, channel.WebSocketDialer{URL: wsURL}, resolver, w.Relay,
		channel.WithConfig(chCfg),
		channel.WithLogger(log.Named("channel")),
		channel.WithMetrics(w.Metrics),
		channel.WithGroupKeys(groups),
	)

	return &Session{
		Self:    self,
		Peers:   peers,
		Groups:  groups,
		Keys:    resolver,
		Files:   attachment.New(w.Relay, log),
		Channel: ch,
		kp:      kp,
	}, nil
}

// Fingerprint is the short hex fingerprint of the session's public key.
func (s *Session) Fingerprint() domain.Fingerprint {
	return crypto.Fingerprint(s.kp.Public)
}

// Close wipes decrypted attachments, cached keys and the private key.
func (s *Session) Close() {
	s.Files.ReleaseAll()
	s.Groups.Close()
	s.Peers.Close()
	s.kp.Wipe()
}
