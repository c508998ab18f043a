package ipc

// Command names one control socket operation.
type Command string

// Commands understood by a running bridge.
const (
	CommandStatus Command = "status"
	CommandCancel Command = "cancel"
)

// Request is one newline-delimited JSON command.
type Request struct {
	Command Command `json:"command"`
}

// SessionInfo describes one connected client session.
type SessionInfo struct {
	ID        string `json:"id"`
	Remote    string `json:"remote,omitempty"`
	State     string `json:"state"`
	Turn      uint64 `json:"turn,omitempty"`
	TurnAgeMS int64  `json:"turn_age_ms,omitempty"`
	Turns     uint64 `json:"turns"`
}

// Response is the single reply to a Request.
type Response struct {
	OK       bool          `json:"ok"`
	State    string        `json:"state,omitempty"`
	Message  string        `json:"message,omitempty"`
	Error    string        `json:"error,omitempty"`
	Sessions []SessionInfo `json:"sessions,omitempty"`
}
