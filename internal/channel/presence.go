package channel

import (
	"sort"

	"cipherline/internal/domain"
)

type presenceSet map[domain.UserID]struct{}

func (p presenceSet) replace(ids []domain.UserID) {
	for k := range p {
		delete(p, k)
	}
	for _, id := range ids {
		p[id] = struct{}{}
	}
}

func (p presenceSet) set(id domain.UserID, online bool) {
	if online {
		p[id] = struct{}{}
	} else {
		delete(p, id)
	}
}

func (p presenceSet) sorted() []domain.UserID {
	out := make([]domain.UserID, 0, len(p))
	for id := range p {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
