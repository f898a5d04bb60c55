// Package attachment encrypts files before upload and decrypts them after
// download.
//
// Only ciphertext and the nonce leave the device. Downloads try each
// candidate key in order until one authenticates, because the right key for
// a blob can be ambiguous across sender roles and membership churn.
// Decrypted bytes are held behind a Handle that callers release when the
// content is no longer shown.
package attachment
