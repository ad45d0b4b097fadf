package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// ScoreRequestMessage asks the worker to (re)score one stored transaction.
// It carries only the id; the worker loads the row itself.
type ScoreRequestMessage struct {
	ID             string    `json:"id"`
	CatalogVersion int       `json:"catalog_version"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewScoreRequestMessage(id string, catalogVersion int) *ScoreRequestMessage {
	return &ScoreRequestMessage{
		ID:             id,
		CatalogVersion: catalogVersion,
		Timestamp:      time.Now().UTC(),
	}
}

func (m *ScoreRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ScoreRequestMessageFromJSON decodes and checks a message body.
func ScoreRequestMessageFromJSON(data []byte) (*ScoreRequestMessage, error) {
	var msg ScoreRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("score request without id")
	}
	return &msg, nil
}
