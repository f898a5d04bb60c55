package types

import "cipherline/internal/util/memzero"

// GroupKeySize is the length of a group key in bytes.
const GroupKeySize = 32

// GroupKey is the symmetric key shared by all members of a group chat.
type GroupKey struct {
	ChatID ChatID
	Key    [GroupKeySize]byte
}

// Slice returns the raw key bytes.
func (g GroupKey) Slice() []byte { return g.Key[:] }

// Wipe zeroes the key material.
func (g *GroupKey) Wipe() { memzero.Zero(g.Key[:]) }

// WrappedGroupKey is a group key encrypted for one recipient under the
// provider/recipient shared secret.
type WrappedGroupKey struct {
	ChatID          ChatID    `json:"chat_id"`
	ProviderUserID  UserID    `json:"provider_user_id,omitempty"`
	RecipientUserID UserID    `json:"recipient_user_id"`
	Ciphertext      []byte    `json:"wrapped_key_ciphertext"`
	Nonce           []byte    `json:"wrapped_key_nonce"`
	Algo            Algorithm `json:"algo"`
}

// Sealed returns the wrap as an AEAD payload.
func (w WrappedGroupKey) Sealed() Sealed {
	return Sealed{Ciphertext: w.Ciphertext, Nonce: w.Nonce, Algo: w.Algo}
}

// RecipientFailure records why a single wrap could not be delivered.
type RecipientFailure struct {
	UserID UserID
	Err    error
}

// DistributionReport is the outcome of a best-effort group key fan-out.
type DistributionReport struct {
	ChatID    ChatID
	Delivered []UserID
	Failed    []RecipientFailure
}

// OK reports whether every recipient received a wrap.
func (r DistributionReport) OK() bool { return len(r.Failed) == 0 }
