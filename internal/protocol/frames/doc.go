// Package frames defines the versioned JSON frames exchanged over the
// duplex sync channel.
//
// # Overview
//
// Every frame is a JSON object with a protocol version "v" and a "type"
// discriminator. The remaining fields depend on the type:
//
// Client to server:
//   - subscribe{chat_id}
//   - unsubscribe{chat_id}
//   - send_message{chat_id, content | ciphertext+nonce+algo, content_type, attachment_id?}
//
// Server to client:
//   - subscribed{chat_id}, unsubscribed{chat_id}
//   - message{chat_id, message}: full message, only for the subscribed chat
//   - new_message{chat_id}: notification for any chat the user belongs to
//   - presence_snapshot{online_user_ids}, presence{user_id, online}
//   - unread_update{chat_id}
//   - removed_from_chat{chat_id}
//   - users_changed, chats_changed
//
// # Decoding
//
// Decode returns one of the concrete frame structs. A missing "v" is read as
// version 1. Frames with a newer version fail with
// domain.ErrUnsupportedVersion and unknown types with domain.ErrUnknownFrame,
// so callers can skip a single bad frame and carry on.
package frames
