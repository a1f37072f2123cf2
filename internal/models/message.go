package models

// Message is one chat event in the Worminal stream. Outbound messages
// are appended locally with IsOptimistic set before the server has seen
// them; the server echo is recognized by the transport's dedup window
// and never appended twice.
type Message struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Username     string `json:"username"`
	Text         string `json:"text"`
	TimestampMS  int64  `json:"timestamp_ms"`
	IsOptimistic bool   `json:"is_optimistic,omitempty"`
}

type ConnectionStatus string

const (
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
	ConnectionStatusConnecting   ConnectionStatus = "connecting"
	ConnectionStatusConnected    ConnectionStatus = "connected"
)

// ConnectionState is owned exclusively by the realtime transport.
type ConnectionState struct {
	Status           ConnectionStatus
	ReconnectAttempt int
}

// PublicSnapshot is the spectator-mode mirror of the Worminal: the
// current session holder, the nema's recent activity, and the remaining
// time. TimeRemaining is reported by the backend in seconds, unlike the
// session endpoint which reports milliseconds; the public feed converts
// at its boundary.
type PublicSnapshot struct {
	User          string        `json:"user"`
	Nema          NemaState     `json:"nema"`
	Status        SessionStatus `json:"status"`
	TimeRemaining int64         `json:"time_remaining"`
}

type NemaState struct {
	Name     string    `json:"name"`
	Messages []Message `json:"messages"`
	States   []string  `json:"states"`
}
