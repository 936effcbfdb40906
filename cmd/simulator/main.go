// Command simulator connects synthetic drivers to a running tracker and
// streams random-walk location reports plus occasional incidents.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/gridlock/internal/simulator"
	"github.com/okian/gridlock/pkg/logger"
)

// Default simulation constants. The default area is central London, which
// matches the sample zone fixtures shipped with the tracker.
const (
	defaultDrivers        = 50
	defaultDuration       = 2 * time.Minute
	defaultReportInterval = 2 * time.Second
	defaultIncidentRate   = 0.01
	defaultCenterLat      = 51.505
	defaultCenterLng      = -0.125
	defaultSpreadDeg      = 0.05
)

func main() {
	var (
		url            = flag.String("url", "ws://localhost:4000/ws", "WebSocket URL of the tracker")
		drivers        = flag.Int("drivers", defaultDrivers, "Number of concurrent simulated drivers")
		duration       = flag.Duration("duration", defaultDuration, "How long the simulation runs")
		reportInterval = flag.Duration("interval", defaultReportInterval, "Delay between location reports per driver")
		incidentRate   = flag.Float64("incident-rate", defaultIncidentRate, "Probability of an incident per location report")
		centerLat      = flag.Float64("lat", defaultCenterLat, "Center latitude of the simulated area")
		centerLng      = flag.Float64("lng", defaultCenterLng, "Center longitude of the simulated area")
		spread         = flag.Float64("spread", defaultSpreadDeg, "Half-width of the simulated area in degrees")
		verbose        = flag.Bool("verbose", false, "Log every received event")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := &simulator.Config{
		URL:            *url,
		Drivers:        *drivers,
		Duration:       *duration,
		ReportInterval: *reportInterval,
		IncidentRate:   *incidentRate,
		CenterLat:      *centerLat,
		CenterLng:      *centerLng,
		SpreadDeg:      *spread,
		Verbose:        *verbose,
	}

	stats := simulator.Run(ctx, cfg)
	if stats.ConnectFailures > 0 && stats.DriversConnected == 0 {
		os.Exit(1)
	}
}
