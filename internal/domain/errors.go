package domain

import "errors"

var (
	// ErrWrongPassword is returned when a password-wrapped key fails its
	// authentication tag.
	ErrWrongPassword = errors.New("wrong password or corrupted key record")
	// ErrNotFound is returned when a peer key or group wrap is absent.
	ErrNotFound = errors.New("not found")
	// ErrDecryptionFailed is returned when an AEAD tag does not verify.
	ErrDecryptionFailed = errors.New("decryption failed")
	// ErrKeyUnavailable is returned when a chat key cannot be resolved.
	ErrKeyUnavailable = errors.New("chat key unavailable")
	// ErrDeliveryFailed is returned when a frame is sent on a closed channel.
	ErrDeliveryFailed = errors.New("delivery failed: channel closed")
	// ErrUploadFailed wraps transport failures during blob upload.
	ErrUploadFailed = errors.New("upload failed")
	// ErrDownloadFailed wraps transport failures during blob download.
	ErrDownloadFailed = errors.New("download failed")
	// ErrMissingKey is returned when no candidate key exists for a payload.
	ErrMissingKey = errors.New("missing decryption key")

	ErrNoKeypair          = errors.New("no keypair stored on this device")
	ErrWeakPassword       = errors.New("password too short")
	ErrNotGroupChat       = errors.New("chat is not a group chat")
	ErrUnknownFrame       = errors.New("unknown frame type")
	ErrUnsupportedVersion = errors.New("unsupported version")
)
