package eventbus

// Name identifies a server-to-client event type.
type Name string

const (
	// NewMessage fires whenever the receive path durably persists a
	// message (direct or drained from the relay).
	NewMessage Name = "new_message"
	// FriendOnline fires on a friend's offline->online presence edge.
	FriendOnline Name = "friend_online"
	// FriendOffline fires on a friend's online->offline presence edge.
	FriendOffline Name = "friend_offline"
	// FriendKeyConflict fires when a friend's directory-published keys
	// no longer match the pinned keys.
	FriendKeyConflict Name = "friend_key_conflict"
)

// Event is the JSON object broadcast to every open subscriber:
// {"event": "<name>", "data": {...}}.
type Event struct {
	Event Name `json:"event"`
	Data  any  `json:"data"`
}

// ClientEvent is a client-originated event accepted over the same
// connection: typing {to, typing} or mark_read {peer, msg_id?}.
type ClientEvent struct {
	Event string          `json:"event"`
	Data  clientEventData `json:"data"`
}

type clientEventData struct {
	To      string `json:"to,omitempty"`
	Typing  *bool  `json:"typing,omitempty"`
	Peer    string `json:"peer,omitempty"`
	MsgID   string `json:"msg_id,omitempty"`
}

// TypingPayload is the parsed form of a "typing" client event.
type TypingPayload struct {
	To     string
	Typing bool
}

// MarkReadPayload is the parsed form of a "mark_read" client event.
type MarkReadPayload struct {
	Peer  string
	MsgID string
}
