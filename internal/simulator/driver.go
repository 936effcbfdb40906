package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/gridlock/internal/adapters/ws"
	"github.com/okian/gridlock/pkg/logger"
)

// Movement tuning constants.
const (
	maxSpeedKmh  = 90.0
	stepDegrees  = 0.0005
	dialTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second
)

var incidentKinds = []string{"accident", "congestion", "roadwork", "hazard", "other"}

// driver is one simulated connection performing a random walk and reacting
// to nothing. It counts what the server pushes back.
type driver struct {
	id    int
	cfg   *Config
	stats *Stats
	rng   *rand.Rand
	log   logger.Logger
}

// run connects, logs in and reports positions until ctx is cancelled.
func (d *driver) run(ctx context.Context) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, d.cfg.URL, nil)
	if err != nil {
		atomic.AddInt64(&d.stats.ConnectFailures, 1)
		d.log.Warn(ctx, "dial failed", logger.Int("driver", d.id), logger.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()
	atomic.AddInt64(&d.stats.DriversConnected, 1)

	go d.readLoop(ctx, conn)

	if err := d.send(conn, ws.EventLogin, map[string]any{
		"display_name": fmt.Sprintf("sim-driver-%d", d.id),
	}); err != nil {
		return
	}

	lat := d.cfg.CenterLat + (d.rng.Float64()*2-1)*d.cfg.SpreadDeg
	lng := d.cfg.CenterLng + (d.rng.Float64()*2-1)*d.cfg.SpreadDeg

	ticker := time.NewTicker(d.cfg.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		lat += (d.rng.Float64()*2 - 1) * stepDegrees
		lng += (d.rng.Float64()*2 - 1) * stepDegrees
		speed := d.rng.Float64() * maxSpeedKmh

		err := d.send(conn, ws.EventUpdateLocation, map[string]any{
			"location": map[string]float64{"lat": lat, "lng": lng},
			"speed":    speed,
		})
		if err != nil {
			return
		}
		atomic.AddInt64(&d.stats.LocationsSent, 1)

		if d.rng.Float64() < d.cfg.IncidentRate {
			err := d.send(conn, ws.EventReportIncident, map[string]any{
				"type":        incidentKinds[d.rng.Intn(len(incidentKinds))],
				"location":    map[string]float64{"lat": lat, "lng": lng},
				"severity":    1 + d.rng.Intn(5),
				"description": fmt.Sprintf("simulated report from driver %d", d.id),
			})
			if err != nil {
				return
			}
			atomic.AddInt64(&d.stats.IncidentsSent, 1)
		}
	}
}

// readLoop drains and classifies server pushes until the connection dies.
func (d *driver) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		atomic.AddInt64(&d.stats.EventsReceived, 1)

		var env ws.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			continue
		}

		switch env.Event {
		case ws.EventZoneEnter:
			atomic.AddInt64(&d.stats.ZoneEnters, 1)
		case ws.EventZoneExit:
			atomic.AddInt64(&d.stats.ZoneExits, 1)
		case ws.EventIncidentAlert:
			atomic.AddInt64(&d.stats.IncidentAlerts, 1)
		case ws.EventCongestionUpdate:
			atomic.AddInt64(&d.stats.CongestionUpdates, 1)
		case ws.EventError:
			atomic.AddInt64(&d.stats.Errors, 1)
		}

		if d.cfg.Verbose {
			d.log.Info(ctx, "received event",
				logger.Int("driver", d.id),
				logger.String("event", env.Event),
			)
		}
	}
}

// send marshals one envelope and writes it with a deadline.
func (d *driver) send(conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(ws.Envelope{Event: event, Data: raw}); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}
