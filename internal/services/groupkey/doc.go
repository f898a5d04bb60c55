// Package groupkey resolves the symmetric key of a group chat.
//
// # Resolution
//
// For a chat without a cached key, Resolve runs:
//
//  1. Fetch the wrap addressed to us, derive the secret shared with its
//     provider and unwrap. On success the key is cached.
//  2. Retry step 1 under the configured retry.Policy (two retries with a
//     1.2s delay by default) to ride out an admin still distributing.
//  3. If the retries are exhausted and we administer the chat, generate a
//     fresh 256-bit key, cache it, and wrap it for every other member.
//     Fan-out is concurrent and best-effort; failures per recipient are
//     collected in a domain.DistributionReport.
//  4. Otherwise fail with domain.ErrKeyUnavailable.
//
// Concurrent resolutions of the same chat share one flight. The cache is
// the source of truth once populated and is only cleared by Invalidate.
package groupkey
