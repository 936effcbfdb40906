package types

// Outbound event payloads shared by the core service and the gateway.

// ZoneEnterEvent announces a zone membership gain to one client.
type ZoneEnterEvent struct {
	ZoneName        string  `json:"zone_name"`
	CongestionLevel float64 `json:"congestion_level"`
}

// ZoneExitEvent announces a zone membership loss to one client.
type ZoneExitEvent struct {
	ZoneName string `json:"zone_name"`
}

// CongestionUpdateEvent announces a recomputed congestion level to the
// zone's subscribers.
type CongestionUpdateEvent struct {
	ZoneID          string  `json:"zone_id"`
	CongestionLevel float64 `json:"congestion_level"`
}

// ErrorEvent carries a notice to the originating connection.
type ErrorEvent struct {
	Message string `json:"message"`
}
