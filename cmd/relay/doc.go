// Package main runs the in-memory relay used by cipherline during
// development and tests. It stores published public keys, group key wraps,
// encrypted blobs and chat messages, and relays chat events over WebSocket.
//
// HTTP API (Authorization: Bearer <token> unless noted)
//
//	POST /crypto/public-key                 publish the caller's public key
//	GET  /crypto/public-key/{user_id}       fetch a user's public key
//	POST /crypto/group-key/wrap             store a wrap addressed to a member
//	GET  /crypto/group-key/wrap/{chat_id}   fetch the wrap addressed to the caller
//	GET  /chats/                            chats the caller belongs to
//	GET  /chats/unread-counts               per-chat unread counts
//	GET  /chats/{chat_id}/messages          chat history
//	POST /chats/{chat_id}/read-state        ?last_read_message_id=N
//	POST /files/upload                      multipart "file" part, X-Nonce header
//	GET  /files/{file_id}                   ciphertext with X-Nonce and X-Algo
//	GET  /ws?token=...                      event socket (no header auth)
//
// Provisioning (no auth)
//
//	POST /dev/users                         {id, username} -> {token}
//	POST /dev/chats                         {chat_type, name, admin_user_id, member_ids}
//	PUT  /dev/chats/{chat_id}/members       {member_ids}
//
// All state is held in memory and lost on exit. The relay never sees
// plaintext or private keys.
package main
