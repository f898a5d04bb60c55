package groupkey

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"cipherline/internal/crypto"
	"cipherline/internal/domain"
	"cipherline/internal/metrics"
	"cipherline/internal/util/memzero"
	"cipherline/internal/util/retry"
)

// Outcome says how a key was obtained.
type Outcome string

const (
	OutcomeCacheHit    Outcome = "cache_hit"
	OutcomeUnwrapped   Outcome = "unwrapped"
	OutcomeGenerated   Outcome = "generated"
	OutcomeUnavailable Outcome = "unavailable"
)

// Resolution is the result of Resolve. Report is set only when the key was
// generated and distributed.
type Resolution struct {
	Key     domain.GroupKey
	Outcome Outcome
	Report  *domain.DistributionReport
}

// Config tunes resolution. Timeout bounds one shared resolution, which
// outlives the context of the caller that started it.
type Config struct {
	Retry   retry.Policy
	FanOut  int
	Timeout time.Duration
}

// DefaultConfig mirrors the distribution race window seen in practice.
func DefaultConfig() Config {
	return Config{
		Retry:   retry.Policy{Retries: 2, Delay: 1200 * time.Millisecond},
		FanOut:  8,
		Timeout: 30 * time.Second,
	}
}

var errBadGroupKey = errors.New("groupkey: unwrapped key has wrong length")

// Manager implements domain.GroupKeys.
type Manager struct {
	peers   domain.PeerKeys
	dir     domain.Directory
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics

	flight singleflight.Group

	mu    sync.RWMutex
	cache map[domain.ChatID]*domain.GroupKey
}

// New returns a Manager acting as peers.Self().
func New(peers domain.PeerKeys, dir domain.Directory, cfg Config, log *zap.Logger, m *metrics.Metrics) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.FanOut <= 0 {
		cfg.FanOut = DefaultConfig().FanOut
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Manager{
		peers:   peers,
		dir:     dir,
		cfg:     cfg,
		log:     log.Named("groupkey"),
		metrics: m,
		cache:   make(map[domain.ChatID]*domain.GroupKey),
	}
}

// EnsureGroupKey returns the key for chat, resolving it if needed.
func (m *Manager) EnsureGroupKey(ctx context.Context, chat domain.Chat) (domain.GroupKey, error) {
	res, err := m.Resolve(ctx, chat)
	if err != nil {
		return domain.GroupKey{}, err
	}
	return res.Key, nil
}

// Resolve runs the resolution algorithm and reports how the key was found.
func (m *Manager) Resolve(ctx context.Context, chat domain.Chat) (Resolution, error) {
	if !chat.IsGroup() {
		return Resolution{}, fmt.Errorf("chat %s: %w", chat.ID, domain.ErrNotGroupChat)
	}
	if k, ok := m.Cached(chat.ID); ok {
		m.metrics.GroupKeyResolved(string(OutcomeCacheHit))
		return Resolution{Key: k, Outcome: OutcomeCacheHit}, nil
	}

	// Each waiter gives up on its own context; the shared work does not.
	ch := m.flight.DoChan(chat.ID.String(), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.Timeout)
		defer cancel()
		return m.resolve(fctx, chat)
	})
	select {
	case <-ctx.Done():
		return Resolution{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Resolution{}, r.Err
		}
		return r.Val.(Resolution), nil
	}
}

func (m *Manager) resolve(ctx context.Context, chat domain.Chat) (Resolution, error) {
	if k, ok := m.Cached(chat.ID); ok {
		return Resolution{Key: k, Outcome: OutcomeCacheHit}, nil
	}
	log := m.log.With(zap.Stringer("chat", chat.ID))

	var key domain.GroupKey
	err := retry.Do(ctx, m.cfg.Retry, func(ctx context.Context, attempt int) error {
		k, err := m.unwrap(ctx, chat)
		if err != nil {
			log.Debug("group key wrap unavailable", zap.Int("attempt", attempt+1), zap.Error(err))
			return err
		}
		key = k
		return nil
	})
	if err == nil {
		m.store(key)
		m.metrics.GroupKeyResolved(string(OutcomeUnwrapped))
		log.Info("group key unwrapped")
		return Resolution{Key: key, Outcome: OutcomeUnwrapped}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Resolution{}, ctxErr
	}

	if chat.AdminUserID != m.peers.Self() {
		m.metrics.GroupKeyResolved(string(OutcomeUnavailable))
		log.Warn("group key unavailable", zap.Int("attempts", m.cfg.Retry.Attempts()), zap.Error(err))
		return Resolution{}, fmt.Errorf("chat %s: %w: %v", chat.ID, domain.ErrKeyUnavailable, err)
	}

	key, err = generate(chat.ID)
	if err != nil {
		return Resolution{}, err
	}
	m.store(key)
	// The admin's own wrap lets its later sessions unwrap instead of
	// re-keying the group.
	if err := m.wrapFor(ctx, key, m.peers.Self()); err != nil {
		log.Warn("group key self wrap failed", zap.Error(err))
	}
	report := m.distribute(ctx, key, chat.Others(m.peers.Self()))
	m.metrics.GroupKeyResolved(string(OutcomeGenerated))
	log.Info("group key generated",
		zap.Int("delivered", len(report.Delivered)),
		zap.Int("failed", len(report.Failed)))
	return Resolution{Key: key, Outcome: OutcomeGenerated, Report: &report}, nil
}

// unwrap performs one fetch-and-open attempt.
func (m *Manager) unwrap(ctx context.Context, chat domain.Chat) (domain.GroupKey, error) {
	w, err := m.dir.FetchGroupKeyWrap(ctx, chat.ID)
	if err != nil {
		return domain.GroupKey{}, err
	}
	provider := w.ProviderUserID
	if provider == 0 {
		provider = chat.AdminUserID
	}
	secret, err := m.peers.SharedWith(ctx, provider)
	if err != nil {
		return domain.GroupKey{}, fmt.Errorf("shared secret with provider %s: %w", provider, err)
	}
	raw, err := crypto.DecryptBytes(secret.Slice(), w.Sealed())
	if err != nil {
		// The provider may have re-keyed since we cached its secret.
		m.peers.Forget(provider)
		return domain.GroupKey{}, err
	}
	defer memzero.Zero(raw)

	k := domain.GroupKey{ChatID: chat.ID}
	if len(raw) != len(k.Key) {
		return domain.GroupKey{}, errBadGroupKey
	}
	copy(k.Key[:], raw)
	return k, nil
}

func generate(chat domain.ChatID) (domain.GroupKey, error) {
	k := domain.GroupKey{ChatID: chat}
	if _, err := rand.Read(k.Key[:]); err != nil {
		return domain.GroupKey{}, err
	}
	return k, nil
}

// Redistribute wraps the cached key of chat for recipients, or for every
// other member when recipients is empty. It is used after members join.
func (m *Manager) Redistribute(ctx context.Context, chat domain.Chat, recipients ...domain.UserID) (domain.DistributionReport, error) {
	if !chat.IsGroup() {
		return domain.DistributionReport{}, domain.ErrNotGroupChat
	}
	key, ok := m.Cached(chat.ID)
	if !ok {
		return domain.DistributionReport{}, fmt.Errorf("chat %s: %w", chat.ID, domain.ErrKeyUnavailable)
	}
	if len(recipients) == 0 {
		recipients = chat.Others(m.peers.Self())
	}
	return m.distribute(ctx, key, recipients), nil
}

// distribute wraps key for every recipient concurrently. One recipient's
// failure never stops the others.
func (m *Manager) distribute(ctx context.Context, key domain.GroupKey, recipients []domain.UserID) domain.DistributionReport {
	report := domain.DistributionReport{ChatID: key.ChatID}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(m.cfg.FanOut)
	for _, r := range recipients {
		r := r
		g.Go(func() error {
			err := m.wrapFor(ctx, key, r)
			m.metrics.WrapPublished(err == nil)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				m.log.Warn("group key wrap failed",
					zap.Stringer("chat", key.ChatID), zap.Stringer("recipient", r), zap.Error(err))
				report.Failed = append(report.Failed, domain.RecipientFailure{UserID: r, Err: err})
				return nil
			}
			report.Delivered = append(report.Delivered, r)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Delivered, func(i, j int) bool { return report.Delivered[i] < report.Delivered[j] })
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].UserID < report.Failed[j].UserID })
	return report
}

func (m *Manager) wrapFor(ctx context.Context, key domain.GroupKey, recipient domain.UserID) error {
	secret, err := m.peers.SharedWith(ctx, recipient)
	if err != nil {
		return fmt.Errorf("shared secret: %w", err)
	}
	sealed, err := crypto.EncryptBytes(secret.Slice(), key.Slice())
	if err != nil {
		return err
	}
	return m.dir.PublishGroupKeyWrap(ctx, domain.WrappedGroupKey{
		ChatID:          key.ChatID,
		ProviderUserID:  m.peers.Self(),
		RecipientUserID: recipient,
		Ciphertext:      sealed.Ciphertext,
		Nonce:           sealed.Nonce,
		Algo:            sealed.Algo,
	})
}

// Cached returns the cached key without any network access.
func (m *Manager) Cached(chat domain.ChatID) (domain.GroupKey, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.cache[chat]
	if !ok {
		return domain.GroupKey{}, false
	}
	return *k, true
}

func (m *Manager) store(k domain.GroupKey) {
	m.mu.Lock()
	if old, ok := m.cache[k.ChatID]; ok {
		old.Wipe()
	}
	m.cache[k.ChatID] = &k
	m.mu.Unlock()
}

// Invalidate drops the cached key so the next use resolves again.
func (m *Manager) Invalidate(chat domain.ChatID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.cache[chat]; ok {
		k.Wipe()
		delete(m.cache, chat)
		m.log.Info("group key invalidated", zap.Stringer("chat", chat))
	}
}

// Close wipes every cached key.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, k := range m.cache {
		k.Wipe()
		delete(m.cache, id)
	}
}

// Compile-time assertion that Manager implements domain.GroupKeys.
var _ domain.GroupKeys = (*Manager)(nil)
