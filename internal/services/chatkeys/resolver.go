package chatkeys

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"

	"cipherline/internal/domain"
)

// Resolver implements domain.KeyResolver.
type Resolver struct {
	peers  domain.PeerKeys
	groups domain.GroupKeys
	log    *zap.Logger
}

// New returns a Resolver.
func New(peers domain.PeerKeys, groups domain.GroupKeys, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{peers: peers, groups: groups, log: log.Named("chatkeys")}
}

// MessageKey returns the key for text in chat. Any failure is reported as
// domain.ErrKeyUnavailable so callers never fall back to plaintext.
func (r *Resolver) MessageKey(ctx context.Context, chat domain.Chat) ([]byte, error) {
	if chat.IsGroup() {
		k, err := r.groups.EnsureGroupKey(ctx, chat)
		if err != nil {
			return nil, err
		}
		return k.Slice(), nil
	}
	peer, ok := chat.Counterpart(r.peers.Self())
	if !ok {
		return nil, fmt.Errorf("chat %s has no counterpart: %w", chat.ID, domain.ErrKeyUnavailable)
	}
	s, err := r.peers.SharedWith(ctx, peer)
	if err != nil {
		return nil, fmt.Errorf("chat %s: %w: %v", chat.ID, domain.ErrKeyUnavailable, err)
	}
	return s.Slice(), nil
}

// AttachmentCandidates lists keys to try for a blob in chat, most likely
// first. Groups try the group key, then the secret shared with peerHint
// (usually the sender). Private chats try the counterpart, then peerHint.
func (r *Resolver) AttachmentCandidates(ctx context.Context, chat domain.Chat, peerHint domain.UserID) []domain.KeyCandidate {
	var out []domain.KeyCandidate
	add := func(label string, key []byte) {
		for _, c := range out {
			if bytes.Equal(c.Key, key) {
				return
			}
		}
		out = append(out, domain.KeyCandidate{Label: label, Key: key})
	}
	addPeer := func(peer domain.UserID) {
		if peer == 0 {
			return
		}
		s, err := r.peers.SharedWith(ctx, peer)
		if err != nil {
			r.log.Debug("no shared secret for candidate", zap.Stringer("peer", peer), zap.Error(err))
			return
		}
		add("peer:"+peer.String(), s.Slice())
	}

	self := r.peers.Self()
	if chat.IsGroup() {
		if k, err := r.groups.EnsureGroupKey(ctx, chat); err == nil {
			add("group", k.Slice())
		} else {
			r.log.Debug("group key not available for candidate", zap.Stringer("chat", chat.ID), zap.Error(err))
		}
		if peerHint != self {
			addPeer(peerHint)
		}
		return out
	}

	if peer, ok := chat.Counterpart(self); ok {
		addPeer(peer)
	}
	addPeer(peerHint)
	return out
}

// Compile-time assertion that Resolver implements domain.KeyResolver.
var _ domain.KeyResolver = (*Resolver)(nil)
