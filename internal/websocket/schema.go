package websocket

import "encoding/json"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError    Event = "error"
	EventSnapshot Event = "snapshot"
	EventFeed     Event = "feed"
	EventPong     Event = "pong"
)

// SnapshotResponse carries the active-session state sent on connect.
type SnapshotResponse struct {
	Event    Event       `json:"event"`
	Sessions interface{} `json:"sessions"`
}

// FeedResponse wraps one live monitor event. Data is the raw JSON published
// on the exam channel, forwarded verbatim.
type FeedResponse struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
