package simulator

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/gridlock/pkg/logger"
)

// rampDelay spaces out connection attempts so a large simulation does not
// hammer the upgrade endpoint all at once.
const rampDelay = 20 * time.Millisecond

// Run executes one simulation: Drivers concurrent connections for Duration,
// then returns the aggregate stats.
func Run(ctx context.Context, cfg *Config) *Stats {
	log := logger.Get().Named("simulator")
	stats := &Stats{StartTime: time.Now()}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Drivers; i++ {
		d := &driver{
			id:    i,
			cfg:   cfg,
			stats: stats,
			rng:   rand.New(rand.NewSource(time.Now().UnixNano() + int64(i))),
			log:   log,
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			d.run(runCtx)
		}()

		select {
		case <-runCtx.Done():
			i = cfg.Drivers
		case <-time.After(rampDelay):
		}
	}

	wg.Wait()
	stats.Duration = time.Since(stats.StartTime)

	log.Info(ctx, "simulation finished",
		logger.Duration("duration", stats.Duration),
		logger.Int("drivers_connected", int(stats.DriversConnected)),
		logger.Int("connect_failures", int(stats.ConnectFailures)),
		logger.Int("locations_sent", int(stats.LocationsSent)),
		logger.Int("incidents_sent", int(stats.IncidentsSent)),
		logger.Int("events_received", int(stats.EventsReceived)),
		logger.Int("zone_enters", int(stats.ZoneEnters)),
		logger.Int("zone_exits", int(stats.ZoneExits)),
		logger.Int("incident_alerts", int(stats.IncidentAlerts)),
		logger.Int("congestion_updates", int(stats.CongestionUpdates)),
		logger.Int("errors", int(stats.Errors)),
	)

	return stats
}
