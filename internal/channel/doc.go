// Package channel implements the client side of the duplex sync channel.
//
// A Channel owns one socket per session and exposes an explicit API:
// SetActiveChat, Send, SendAttachment, Reconcile, and an Events stream.
//
// # States
//
// A Channel starts Connecting. Run dials, flushes frames queued while
// Connecting in FIFO order, re-subscribes the active chat and becomes Open.
// When the socket ends the Channel is Closed and sends fail with
// domain.ErrDeliveryFailed. There is no automatic reconnect: calling Run
// again re-enters Connecting.
//
// # Inbound processing
//
// The read loop decodes and dispatches frames and never waits on network
// key resolution or decryption. Those run on a separate FIFO pipeline; a
// result is applied only if its chat is still active when it completes.
// Full messages for chats that are not active are kept as ciphertext and
// decrypted when the chat is activated. A frame that fails to decode or
// decrypt is logged and counted; the loop carries on.
//
// # Unread and presence
//
// new_message raises a local counter for chats that are not active;
// activation and unread_update zero it; Reconcile replaces every counter
// with the server's numbers and runs on a fixed interval while Open.
// presence_snapshot replaces the online set, presence edits single ids.
package channel
