package types

// ChatType distinguishes pairwise chats from groups.
type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
)

// Participant is a chat member as listed by the server.
type Participant struct {
	ID       UserID `json:"id"`
	Username string `json:"username,omitempty"`
}

// Chat is the roster entry the client needs for key selection.
type Chat struct {
	ID           ChatID        `json:"id"`
	Type         ChatType      `json:"chat_type"`
	Name         string        `json:"name,omitempty"`
	Participants []Participant `json:"participants"`
	AdminUserID  UserID        `json:"admin_user_id,omitempty"`
}

// IsGroup reports whether the chat uses a group key.
func (c Chat) IsGroup() bool { return c.Type == ChatGroup }

// Others returns every participant except self, in roster order.
func (c Chat) Others(self UserID) []UserID {
	out := make([]UserID, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p.ID != self {
			out = append(out, p.ID)
		}
	}
	return out
}

// Counterpart returns the other member of a private chat. A chat with
// oneself resolves to self.
func (c Chat) Counterpart(self UserID) (UserID, bool) {
	if others := c.Others(self); len(others) > 0 {
		return others[0], true
	}
	if c.HasMember(self) {
		return self, true
	}
	return 0, false
}

// HasMember reports whether id participates in the chat.
func (c Chat) HasMember(id UserID) bool {
	for _, p := range c.Participants {
		if p.ID == id {
			return true
		}
	}
	return false
}

// SameMembers reports whether both chats list the same participant set.
func (c Chat) SameMembers(o Chat) bool {
	if len(c.Participants) != len(o.Participants) {
		return false
	}
	set := make(map[UserID]struct{}, len(c.Participants))
	for _, p := range c.Participants {
		set[p.ID] = struct{}{}
	}
	for _, p := range o.Participants {
		if _, ok := set[p.ID]; !ok {
			return false
		}
	}
	return true
}
