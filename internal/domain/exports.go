package domain

import (
	interfaces "cipherline/internal/domain/interfaces"
	types "cipherline/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	UserID             = types.UserID
	ChatID             = types.ChatID
	AttachmentID       = types.AttachmentID
	Fingerprint        = types.Fingerprint
	X25519Public       = types.X25519Public
	X25519Private      = types.X25519Private
	Keypair            = types.Keypair
	PublicKeyJWK       = types.PublicKeyJWK
	SharedSecret       = types.SharedSecret
	Algorithm          = types.Algorithm
	Sealed             = types.Sealed
	KDFParams          = types.KDFParams
	EncryptedKeyRecord = types.EncryptedKeyRecord
	BackupDocument     = types.BackupDocument
	Peer               = types.Peer
	PublicKeyRecord    = types.PublicKeyRecord
	GroupKey           = types.GroupKey
	WrappedGroupKey    = types.WrappedGroupKey
	RecipientFailure   = types.RecipientFailure
	DistributionReport = types.DistributionReport
	ChatType           = types.ChatType
	Participant        = types.Participant
	Chat               = types.Chat
	Attachment         = types.Attachment
	BlobDownload       = types.BlobDownload
	Message            = types.Message
	DecryptedMessage   = types.DecryptedMessage
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	KeyRecordStore = interfaces.KeyRecordStore
	Directory      = interfaces.Directory
	BlobStore      = interfaces.BlobStore
	Roster         = interfaces.Roster
	KeyStore       = interfaces.KeyStore
	PeerKeys       = interfaces.PeerKeys
	GroupKeys      = interfaces.GroupKeys
	KeyCandidate   = interfaces.KeyCandidate
	KeyResolver    = interfaces.KeyResolver
)

// Re-exported constants.
const (
	KeyAlgorithm        = types.KeyAlgorithm
	AlgChaCha20Poly1305 = types.AlgChaCha20Poly1305
	AlgAESGCM           = types.AlgAESGCM
	KDFArgon2id         = types.KDFArgon2id
	KDFScrypt           = types.KDFScrypt
	BackupKind          = types.BackupKind
	GroupKeySize        = types.GroupKeySize
	ChatPrivate         = types.ChatPrivate
	ChatGroup           = types.ChatGroup
	ContentText         = types.ContentText
	ContentImage        = types.ContentImage
	ContentVideo        = types.ContentVideo
	ContentFile         = types.ContentFile
)
