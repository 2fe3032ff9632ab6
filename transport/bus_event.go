package transport

import (
	"encoding/json"
	"time"

	"github.com/goliatone/go-config-monitor/core"
)

const RefreshEventType = "RefreshRemoteApplicationEvent"

// BusEvent is the wire shape of a refresh signal on the bus.
type BusEvent struct {
	Type               string `json:"type"`
	ID                 string `json:"id"`
	Timestamp          int64  `json:"timestamp"`
	OriginService      string `json:"originService"`
	DestinationService string `json:"destinationService"`
}

func NewBusEvent(signal core.RefreshSignal) BusEvent {
	occurredAt := signal.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	origin := signal.ContextID
	if origin == "" {
		origin = signal.Origin
	}
	return BusEvent{
		Type:               RefreshEventType,
		ID:                 signal.ID,
		Timestamp:          occurredAt.UnixMilli(),
		OriginService:      origin,
		DestinationService: signal.Destination,
	}
}

func encodeBusEvent(signal core.RefreshSignal) ([]byte, error) {
	return json.Marshal(NewBusEvent(signal))
}
