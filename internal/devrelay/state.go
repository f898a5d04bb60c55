package devrelay

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cipherline/internal/domain"
	"cipherline/internal/protocol/frames"
)

var (
	errNotMember  = errors.New("devrelay: not a member of this chat")
	errBadMessage = errors.New("devrelay: invalid message")
)

type wrapKey struct {
	chat      domain.ChatID
	recipient domain.UserID
}

type readKey struct {
	user domain.UserID
	chat domain.ChatID
}

type storedBlob struct {
	key  uuid.UUID
	meta domain.Attachment
}

// State is the relay's in-memory data. All methods are safe for concurrent
// use. Events produced by mutations are pushed to the attached Hub.
type State struct {
	mu sync.Mutex

	users  map[domain.UserID]string
	tokens map[string]domain.UserID

	keys  map[domain.UserID]domain.PublicKeyRecord
	wraps map[wrapKey]domain.WrappedGroupKey

	blobIndex map[domain.AttachmentID]storedBlob
	objects   map[uuid.UUID][]byte

	chats    map[domain.ChatID]domain.Chat
	messages map[domain.ChatID][]domain.Message
	reads    map[readKey]int64

	nextChat, nextMessage, nextBlob int64

	hub *Hub
	log *zap.Logger
	now func() time.Time
}

// NewState returns an empty relay state.
func NewState(log *zap.Logger) *State {
	if log == nil {
		log = zap.NewNop()
	}
	s := &State{
		users:     make(map[domain.UserID]string),
		tokens:    make(map[string]domain.UserID),
		keys:      make(map[domain.UserID]domain.PublicKeyRecord),
		wraps:     make(map[wrapKey]domain.WrappedGroupKey),
		blobIndex: make(map[domain.AttachmentID]storedBlob),
		objects:   make(map[uuid.UUID][]byte),
		chats:     make(map[domain.ChatID]domain.Chat),
		messages:  make(map[domain.ChatID][]domain.Message),
		reads:     make(map[readKey]int64),
		log:       log,
		now:       time.Now,
	}
	s.hub = newHub(s, log)
	return s
}

// Hub returns the event hub attached to the state.
func (s *State) Hub() *Hub { return s.hub }

// AddUser registers a user and returns a fresh bearer token for it.
func (s *State) AddUser(id domain.UserID, username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = username
	tok := uuid.NewString()
	s.tokens[tok] = id
	return tok
}

// UserForToken resolves a bearer token.
func (s *State) UserForToken(tok string) (domain.UserID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[tok]
	return id, ok
}

// CreateChat stores a chat with the given members and notifies them.
func (s *State) CreateChat(typ domain.ChatType, name string, admin domain.UserID, members ...domain.UserID) domain.Chat {
	s.mu.Lock()
	s.nextChat++
	c := domain.Chat{
		ID:           domain.ChatID(s.nextChat),
		Type:         typ,
		Name:         name,
		AdminUserID:  admin,
		Participants: s.participantsLocked(members),
	}
	s.chats[c.ID] = c
	s.mu.Unlock()

	s.hub.notifyUsers(members, frames.ChatsChanged{})
	return c
}

// SetMembers replaces the member list of a chat. Removed users receive
// removed_from_chat; everyone involved receives chats_changed.
func (s *State) SetMembers(chat domain.ChatID, members ...domain.UserID) (domain.Chat, error) {
	s.mu.Lock()
	c, ok := s.chats[chat]
	if !ok {
		s.mu.Unlock()
		return domain.Chat{}, domain.ErrNotFound
	}
	keep := make(map[domain.UserID]bool, len(members))
	for _, m := range members {
		keep[m] = true
	}
	var removed []domain.UserID
	for _, p := range c.Participants {
		if !keep[p.ID] {
			removed = append(removed, p.ID)
			delete(s.wraps, wrapKey{chat: chat, recipient: p.ID})
		}
	}
	c.Participants = s.participantsLocked(members)
	s.chats[chat] = c
	s.mu.Unlock()

	for _, u := range removed {
		s.hub.notifyUsers([]domain.UserID{u}, frames.RemovedFromChat{ChatID: chat})
	}
	involved := append(append([]domain.UserID(nil), members...), removed...)
	s.hub.notifyUsers(involved, frames.ChatsChanged{})
	return c, nil
}

func (s *State) participantsLocked(ids []domain.UserID) []domain.Participant {
	out := make([]domain.Participant, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Participant{ID: id, Username: s.users[id]})
	}
	return out
}

func (s *State) publishKey(user domain.UserID, jwk string, algorithm string) {
	s.mu.Lock()
	s.keys[user] = domain.PublicKeyRecord{UserID: user, PublicKeyJWK: jwk, Algorithm: algorithm}
	s.mu.Unlock()
	s.log.Debug("public key published", zap.Stringer("user", user))
}

func (s *State) fetchKey(user domain.UserID) (domain.PublicKeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.keys[user]
	if !ok {
		return domain.PublicKeyRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *State) putWrap(provider domain.UserID, w domain.WrappedGroupKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[w.ChatID]
	if !ok {
		return domain.ErrNotFound
	}
	if !c.HasMember(provider) || !c.HasMember(w.RecipientUserID) {
		return errNotMember
	}
	w.ProviderUserID = provider
	s.wraps[wrapKey{chat: w.ChatID, recipient: w.RecipientUserID}] = w
	return nil
}

func (s *State) fetchWrap(user domain.UserID, chat domain.ChatID) (domain.WrappedGroupKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wraps[wrapKey{chat: chat, recipient: user}]
	if !ok {
		return domain.WrappedGroupKey{}, domain.ErrNotFound
	}
	return w, nil
}

func (s *State) putBlob(data []byte, filename, mime string, nonce []byte, algo domain.Algorithm) domain.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextBlob++
	key := uuid.New()
	if algo == "" {
		algo = domain.AlgChaCha20Poly1305
	}
	meta := domain.Attachment{
		ID:        domain.AttachmentID(s.nextBlob),
		Filename:  filename,
		MimeType:  mime,
		SizeBytes: int64(len(data)),
		Nonce:     append([]byte(nil), nonce...),
		Algo:      algo,
	}
	s.objects[key] = append([]byte(nil), data...)
	s.blobIndex[meta.ID] = storedBlob{key: key, meta: meta}
	s.log.Debug("blob stored", zap.Stringer("id", meta.ID), zap.String("object", key.String()))
	return meta
}

func (s *State) getBlob(id domain.AttachmentID) (domain.Attachment, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobIndex[id]
	if !ok {
		return domain.Attachment{}, nil, domain.ErrNotFound
	}
	return b.meta, append([]byte(nil), s.objects[b.key]...), nil
}

func (s *State) chatsFor(user domain.UserID) []domain.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Chat, 0)
	for _, c := range s.chats {
		if c.HasMember(user) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *State) chat(user domain.UserID, id domain.ChatID) (domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatLocked(user, id)
}

func (s *State) chatLocked(user domain.UserID, id domain.ChatID) (domain.Chat, error) {
	c, ok := s.chats[id]
	if !ok {
		return domain.Chat{}, domain.ErrNotFound
	}
	if !c.HasMember(user) {
		return domain.Chat{}, errNotMember
	}
	return c, nil
}

// unreadFor counts messages from others newer than the user's read marker.
func (s *State) unreadFor(user domain.UserID) map[domain.ChatID]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.ChatID]int)
	for id, c := range s.chats {
		if !c.HasMember(user) {
			continue
		}
		last := s.reads[readKey{user: user, chat: id}]
		n := 0
		for _, m := range s.messages[id] {
			if m.ID > last && m.Sender.ID != user {
				n++
			}
		}
		out[id] = n
	}
	return out
}

func (s *State) history(user domain.UserID, chat domain.ChatID) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.chatLocked(user, chat); err != nil {
		return nil, err
	}
	return append([]domain.Message(nil), s.messages[chat]...), nil
}

func (s *State) markRead(user domain.UserID, chat domain.ChatID, last int64) error {
	s.mu.Lock()
	if _, err := s.chatLocked(user, chat); err != nil {
		s.mu.Unlock()
		return err
	}
	k := readKey{user: user, chat: chat}
	if last > s.reads[k] {
		s.reads[k] = last
	}
	s.mu.Unlock()

	s.hub.notifyUsers([]domain.UserID{user}, frames.UnreadUpdate{ChatID: chat})
	return nil
}

// postMessage stores a message sent by user and relays it.
func (s *State) postMessage(user domain.UserID, f frames.SendMessage) (domain.Message, error) {
	s.mu.Lock()
	c, err := s.chatLocked(user, f.ChatID)
	if err != nil {
		s.mu.Unlock()
		return domain.Message{}, err
	}
	s.nextMessage++
	m := domain.Message{
		ID:          s.nextMessage,
		ChatID:      c.ID,
		Sender:      domain.Participant{ID: user, Username: s.users[user]},
		Timestamp:   s.now().UTC(),
		ContentType: f.ContentType,
		Content:     f.Content,
		Ciphertext:  f.Ciphertext,
		Nonce:       f.Nonce,
		Algo:        f.Algo,
	}
	if m.ContentType == "" {
		m.ContentType = domain.ContentText
	}
	if f.AttachmentID != nil {
		b, ok := s.blobIndex[*f.AttachmentID]
		if !ok {
			s.mu.Unlock()
			return domain.Message{}, fmt.Errorf("%w: unknown attachment %s", errBadMessage, *f.AttachmentID)
		}
		meta := b.meta
		m.Attachment = &meta
	}
	if err := m.Validate(); err != nil {
		s.nextMessage--
		s.mu.Unlock()
		return domain.Message{}, fmt.Errorf("%w: %v", errBadMessage, err)
	}
	s.messages[c.ID] = append(s.messages[c.ID], m)
	s.mu.Unlock()

	s.hub.deliver(c, m)
	return m, nil
}
