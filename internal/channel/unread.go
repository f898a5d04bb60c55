package channel

import "cipherline/internal/domain"

// unreadCounts is the optimistic per-chat counter. Not safe for concurrent
// use; the Channel guards it.
type unreadCounts map[domain.ChatID]int

func (u unreadCounts) increment(chat domain.ChatID) { u[chat]++ }

func (u unreadCounts) zero(chat domain.ChatID) { u[chat] = 0 }

// replace installs server counts. The active chat is always read.
func (u unreadCounts) replace(server map[domain.ChatID]int, active domain.ChatID) {
	for k := range u {
		delete(u, k)
	}
	for k, v := range server {
		u[k] = v
	}
	if active != 0 {
		u[active] = 0
	}
}

func (u unreadCounts) snapshot() map[domain.ChatID]int {
	out := make(map[domain.ChatID]int, len(u))
	for k, v := range u {
		out[k] = v
	}
	return out
}
