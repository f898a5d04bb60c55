// Package chatkeys picks the symmetric key for a chat: the pairwise shared
// secret for private chats and the group key for groups. The channel uses it
// for message bodies and the attachment codec for its candidate list.
package chatkeys
