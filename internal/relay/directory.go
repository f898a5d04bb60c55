package relay

import (
	"context"
	"encoding/json"

	"cipherline/internal/domain"
)

type publishKeyRequest struct {
	PublicKeyJWK string `json:"public_key_jwk"`
	Algorithm    string `json:"algorithm"`
}

// PublishPublicKey upserts the caller's public key. The JWK travels as a
// JSON string.
func (c *HTTP) PublishPublicKey(ctx context.Context, jwk domain.PublicKeyJWK, algorithm string) error {
	b, err := json.Marshal(jwk)
	if err != nil {
		return err
	}
	return c.postJSON(ctx, "/crypto/public-key", publishKeyRequest{PublicKeyJWK: string(b), Algorithm: algorithm}, nil)
}

func (c *HTTP) FetchPublicKey(ctx context.Context, user domain.UserID) (domain.PublicKeyRecord, error) {
	var out domain.PublicKeyRecord
	if err := c.getJSON(ctx, "/crypto/public-key/"+user.String(), &out); err != nil {
		return domain.PublicKeyRecord{}, err
	}
	if out.UserID == 0 {
		out.UserID = user
	}
	return out, nil
}

func (c *HTTP) PublishGroupKeyWrap(ctx context.Context, w domain.WrappedGroupKey) error {
	return c.postJSON(ctx, "/crypto/group-key/wrap", w, nil)
}

func (c *HTTP) FetchGroupKeyWrap(ctx context.Context, chat domain.ChatID) (domain.WrappedGroupKey, error) {
	var out domain.WrappedGroupKey
	if err := c.getJSON(ctx, "/crypto/group-key/wrap/"+chat.String(), &out); err != nil {
		return domain.WrappedGroupKey{}, err
	}
	return out, nil
}
