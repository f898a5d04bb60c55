// Package relay provides the HTTP client for the cipherline server.
//
// One HTTP value implements three collaborator interfaces:
//   - domain.Directory: publish and fetch public keys and group key wraps
//   - domain.BlobStore: upload and download attachment ciphertext
//   - domain.Roster: chat list, unread counts, history and read markers
//
// All requests carry "Authorization: Bearer <token>", accept a context for
// cancellation and deadlines, and pass through a token-bucket limiter.
// A 404 is returned as domain.ErrNotFound; other non-2xx statuses are errors
// naming the method, path and status.
package relay
