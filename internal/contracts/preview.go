package contracts

const (
	// MessageTypeUpdate carries a rendered snapshot to the browser.
	MessageTypeUpdate = "update"
	// MessageTypePing asks the browser to prove it is still alive.
	MessageTypePing = "ping"
	// MessageTypePong answers a ping and reports the version the browser shows.
	MessageTypePong = "pong"
	// MessageTypeNoop answers a poll whose stated version is already current.
	MessageTypeNoop = "noop"
)

// IncomingMessage is the minimal envelope used to route browser messages.
type IncomingMessage struct {
	Type string `json:"type"`
}

// UpdateMessage carries rendered HTML and its snapshot version to the browser.
// Versions are only comparable within one Instance; a page that sees another
// instance must start over.
type UpdateMessage struct {
	Type     string `json:"type"`
	Instance string `json:"instance"`
	Version  uint64 `json:"version"`
	HTML     string `json:"html"`
	Filename string `json:"filename"`
}

// PingMessage is the server heartbeat.
type PingMessage struct {
	Type string `json:"type"`
}

// PongMessage is the browser heartbeat reply.
type PongMessage struct {
	Type    string `json:"type"`
	Version uint64 `json:"version"`
}

// PollResponse answers a poll-mode request. HTML is empty for noop replies.
type PollResponse struct {
	Type     string `json:"type"`
	Instance string `json:"instance"`
	Session  string `json:"session"`
	Version  uint64 `json:"version"`
	HTML     string `json:"html,omitempty"`
	Filename string `json:"filename,omitempty"`
}
