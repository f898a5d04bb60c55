// Package devrelay is an in-memory relay for local development and tests.
//
// It plays the server side of every collaborator the client talks to: the
// public key directory, group key wraps, the attachment blob store, chat
// roster with unread counts and history, and the WebSocket event relay.
// State never leaves memory and the relay only ever sees public keys and
// ciphertext.
//
// HTTP API (bearer token auth unless noted)
//
//	POST /crypto/public-key              {public_key_jwk, algorithm}
//	GET  /crypto/public-key/{user_id}
//	POST /crypto/group-key/wrap          {chat_id, recipient_user_id, wrapped_key_ciphertext, wrapped_key_nonce, algo}
//	GET  /crypto/group-key/wrap/{chat_id}   wrap addressed to the caller
//	GET  /chats/
//	GET  /chats/unread-counts
//	GET  /chats/{chat_id}/messages
//	POST /chats/{chat_id}/read-state?last_read_message_id=N
//	POST /files/upload                   multipart "file", x-nonce header
//	GET  /files/{file_id}                ciphertext, x-nonce and x-algo headers
//	GET  /ws?token=T                     WebSocket, token in the query
//
// Provisioning (no auth, development only)
//
//	POST /dev/users                      {id, username} -> {id, token}
//	POST /dev/chats                      {chat_type, name, admin_user_id, member_ids}
//	PUT  /dev/chats/{chat_id}/members    {member_ids}
//
// Tests can skip HTTP entirely with State.As, which returns an in-process
// client for one user.
package devrelay
