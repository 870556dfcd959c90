package protocol

const (
	ActionSubscribe      = "subscribe"
	ActionUnsubscribe    = "unsubscribe"
	ActionUnsubscribeAll = "unsubscribe_all"
	ActionHistory        = "history"
	ActionSnapshot       = "snapshot"
)

const (
	TypeAck      = "ack"
	TypeError    = "error"
	TypeHistory  = "history"
	TypeSnapshot = "snapshot"
)

type WSRequest struct {
	Action  string         `json:"action"`
	Payload RequestPayload `json:"payload"`
	ID      string         `json:"id,omitempty"`
}

// RequestPayload selects instruments by symbol, by category name, or both.
type RequestPayload struct {
	Symbols    []string `json:"symbols"`
	Categories []string `json:"categories,omitempty"`
}

type WSResponse struct {
	Type    string      `json:"type"`             // ack, error, history, snapshot
	ID      string      `json:"id,omitempty"`     // Matches request ID
	Status  string      `json:"status,omitempty"` // "success", "error"
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}
