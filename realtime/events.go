package realtime

import "encoding/json"

// Event names pushed by the server.
const (
	EventCompanyUpdated = "companyUpdated"
	EventCompanyDeleted = "companyDeleted"
	EventUserUpdated    = "userUpdated"
	EventUserDeleted    = "userDeleted"
)

// Envelope frames every message on the channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Company is the payload of company mutation events.
type Company struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Service     *string  `json:"service,omitempty"`
	Capital     *float64 `json:"capital,omitempty"`
	Logo        *string  `json:"logo,omitempty"`
	LocationLat *float64 `json:"locationLat,omitempty"`
	LocationLon *float64 `json:"locationLon,omitempty"`
	OwnerID     int64    `json:"ownerId"`
}

// Deleted identifies the entity removed by a *Deleted event.
type Deleted struct {
	ID int64 `json:"id"`
}
