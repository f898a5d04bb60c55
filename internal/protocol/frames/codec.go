package frames

import (
	"bytes"
	"encoding/json"
	"fmt"

	"cipherline/internal/domain"
)

type header struct {
	V    int  `json:"v"`
	Type Type `json:"type"`
}

// Encode serialises f with the version and type header.
func Encode(f Frame) ([]byte, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	head, err := json.Marshal(header{V: Version, Type: f.FrameType()})
	if err != nil {
		return nil, err
	}
	body = bytes.TrimSpace(body)
	if len(body) <= 2 { // "{}"
		return head, nil
	}
	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}

// Peek returns the header of b without decoding the body.
func Peek(b []byte) (Type, int, error) {
	var h header
	if err := json.Unmarshal(b, &h); err != nil {
		return "", 0, fmt.Errorf("decode frame header: %w", err)
	}
	if h.V == 0 {
		h.V = Version
	}
	return h.Type, h.V, nil
}

// Decode parses b into its concrete frame type.
func Decode(b []byte) (Frame, error) {
	t, v, err := Peek(b)
	if err != nil {
		return nil, err
	}
	if v > Version {
		return nil, fmt.Errorf("%w: frame v%d", domain.ErrUnsupportedVersion, v)
	}

	var f Frame
	switch t {
	case TypeSubscribe:
		f, err = decodeAs[Subscribe](b)
	case TypeUnsubscribe:
		f, err = decodeAs[Unsubscribe](b)
	case TypeSendMessage:
		f, err = decodeAs[SendMessage](b)
	case TypeSubscribed:
		f, err = decodeAs[Subscribed](b)
	case TypeUnsubscribed:
		f, err = decodeAs[Unsubscribed](b)
	case TypeMessage:
		f, err = decodeAs[Message](b)
	case TypeNewMessage:
		f, err = decodeAs[NewMessage](b)
	case TypePresenceSnapshot:
		f, err = decodeAs[PresenceSnapshot](b)
	case TypePresence:
		f, err = decodeAs[Presence](b)
	case TypeUnreadUpdate:
		f, err = decodeAs[UnreadUpdate](b)
	case TypeRemovedFromChat:
		f, err = decodeAs[RemovedFromChat](b)
	case TypeUsersChanged:
		f = UsersChanged{}
	case TypeChatsChanged:
		f = ChatsChanged{}
	default:
		return nil, fmt.Errorf("%w %q", domain.ErrUnknownFrame, t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s frame: %w", t, err)
	}
	return f, nil
}

func decodeAs[T Frame](b []byte) (Frame, error) {
	var f T
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	return f, nil
}
