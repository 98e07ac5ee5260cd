package amqp

import (
	"encoding/json"
	"time"
)

// PredictionRecordedMessage announces a stored prediction snapshot. It
// carries only the ID; the worker reads the full record from the database.
type PredictionRecordedMessage struct {
	ID        int64     `json:"id"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPredictionRecordedMessage creates a message stamped with the current
// time.
func NewPredictionRecordedMessage(id int64, requestID string) *PredictionRecordedMessage {
	return &PredictionRecordedMessage{
		ID:        id,
		RequestID: requestID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *PredictionRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PredictionRecordedMessageFromJSON parses a message body.
func PredictionRecordedMessageFromJSON(data []byte) (*PredictionRecordedMessage, error) {
	var msg PredictionRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
