package channel

import "time"

// State is the connection state of a Channel.
type State int32

const (
	Connecting State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config tunes a Channel.
type Config struct {
	// AckTimeout is how long to wait for "subscribed" after Open before
	// sending the subscribe once more. Zero disables the retry.
	AckTimeout time.Duration
	// ResyncInterval is the period of Reconcile while Open. Zero disables it.
	ResyncInterval time.Duration
	// EventBuffer is the capacity of the Events channel. Events are dropped
	// when it is full.
	EventBuffer int
	// BacklogLimit caps ciphertext kept per inactive chat.
	BacklogLimit int
}

// DefaultConfig returns the settings used by the CLI.
func DefaultConfig() Config {
	return Config{
		AckTimeout:     250 * time.Millisecond,
		ResyncInterval: 30 * time.Second,
		EventBuffer:    256,
		BacklogLimit:   500,
	}
}
