// Package simulator drives a running tracker with synthetic drivers over
// WebSocket for load and smoke testing.
package simulator

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	URL            string        // WebSocket URL of the tracker, e.g. ws://localhost:4000/ws
	Drivers        int           // Number of concurrent simulated drivers
	Duration       time.Duration // How long the simulation runs
	ReportInterval time.Duration // Delay between location reports per driver
	IncidentRate   float64       // Probability of reporting an incident per location report
	CenterLat      float64       // Center latitude of the simulated area
	CenterLng      float64       // Center longitude of the simulated area
	SpreadDeg      float64       // Half-width of the simulated area in degrees
	Verbose        bool          // Log every received event
}

// Stats holds aggregate counters for one simulation run.
type Stats struct {
	DriversConnected  int64
	ConnectFailures   int64
	LocationsSent     int64
	IncidentsSent     int64
	EventsReceived    int64
	ZoneEnters        int64
	ZoneExits         int64
	IncidentAlerts    int64
	CongestionUpdates int64
	Errors            int64
	StartTime         time.Time
	Duration          time.Duration
}
