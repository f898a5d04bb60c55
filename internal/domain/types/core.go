package types

import "strconv"

// UserID identifies an account on the server.
type UserID int64

// String returns the decimal form of the id.
func (id UserID) String() string { return strconv.FormatInt(int64(id), 10) }

// ChatID identifies a private or group chat.
type ChatID int64

// String returns the decimal form of the id.
func (id ChatID) String() string { return strconv.FormatInt(int64(id), 10) }

// AttachmentID identifies an uploaded ciphertext blob.
type AttachmentID int64

// String returns the decimal form of the id.
func (id AttachmentID) String() string { return strconv.FormatInt(int64(id), 10) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }
