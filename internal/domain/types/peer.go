package types

// Peer is a user's published public key.
type Peer struct {
	UserID    UserID
	PublicKey X25519Public
	Algorithm string
}

// PublicKeyRecord is the directory's wire form of a published key. The JWK
// travels as a JSON string.
type PublicKeyRecord struct {
	UserID       UserID `json:"user_id"`
	PublicKeyJWK string `json:"public_key_jwk"`
	Algorithm    string `json:"algorithm"`
}
