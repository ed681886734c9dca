package queue

import "encoding/json"

// Stage names carried in queue messages. Each stage is dispatched as an
// independent unit of work keyed by document id.
const (
	StageScan       = "scan"
	StageExtraction = "extraction"
)

// Message is the payload sent to downstream queue consumers.
type Message struct {
	DocumentID string `json:"documentId"`
	Stage      string `json:"stage"`
	RequestID  string `json:"requestId"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
