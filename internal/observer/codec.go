package observer

import (
	"encoding/json"
	"fmt"

	"github.com/bobmcallan/aviary/internal/models"
)

// eventKey encodes an events-table key as pad(timestamp, padLen) + "-" + id,
// so the table's natural key order is timestamp order.
func eventKey(timestamp int64, id string, padLen int) string {
	return fmt.Sprintf("%0*d-%s", padLen, timestamp, id)
}

func encodeEvent(event *models.Event) ([]byte, error) {
	return json.Marshal(event)
}

func decodeEvent(raw []byte) (*models.Event, error) {
	var event models.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
