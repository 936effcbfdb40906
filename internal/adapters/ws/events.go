// Package ws implements the per-connection event gateway over WebSocket.
//
// Inbound and outbound traffic share one envelope shape: a named event plus
// a JSON payload. The set of events is closed; anything else is rejected at
// the boundary before it can reach core logic.
package ws

import (
	"encoding/json"

	"github.com/okian/gridlock/internal/domain/types"
)

// Inbound event names.
const (
	EventLogin          = "login"
	EventUpdateLocation = "updateLocation"
	EventReportIncident = "reportIncident"
)

// Outbound event names.
const (
	EventUsers            = "users"
	EventZoneEnter        = "zoneEnter"
	EventZoneExit         = "zoneExit"
	EventIncidentAlert    = "incidentAlert"
	EventCongestionUpdate = "congestionUpdate"
	EventError            = "error"
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outbound pairs an event name with its not-yet-marshaled payload.
type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// loginPayload carries the login event.
type loginPayload struct {
	DisplayName string `json:"display_name"`
}

// locationPayload carries the updateLocation event. Speed is optional and
// defaults to zero.
type locationPayload struct {
	Location *types.Point `json:"location"`
	SpeedKmh float64      `json:"speed"`
}

// incidentPayload carries the reportIncident event.
type incidentPayload struct {
	Type        string       `json:"type"`
	Location    *types.Point `json:"location"`
	Severity    int          `json:"severity"`
	Description string       `json:"description"`
}

// Outbound payload shapes live in the types package so the core service can
// emit them through the hub without depending on this package's internals.
