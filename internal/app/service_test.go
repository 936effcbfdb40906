package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/gridlock/internal/adapters/repository"
	"github.com/okian/gridlock/internal/adapters/ws"
	"github.com/okian/gridlock/internal/domain/geo"
	"github.com/okian/gridlock/internal/domain/model"
	"github.com/okian/gridlock/pkg/logger"
)

func init() {
	_ = logger.Init()
}

// sentEvent is one captured fan-out call.
type sentEvent struct {
	ConnectionID string // empty for broadcasts
	Event        string
	Data         interface{}
}

// recordingSender captures everything the service pushes outward.
type recordingSender struct {
	mu     sync.Mutex
	events []sentEvent
}

func (r *recordingSender) Unicast(connectionID, event string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sentEvent{ConnectionID: connectionID, Event: event, Data: data})
}

func (r *recordingSender) Broadcast(event string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sentEvent{Event: event, Data: data})
}

func (r *recordingSender) of(event string) []sentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []sentEvent
	for _, e := range r.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (r *recordingSender) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func newTestService(t *testing.T, opts ...Option) (*Service, *recordingSender, *repository.MemoryStore, *quartz.Mock) {
	t.Helper()

	store := repository.NewMemoryStore()
	sender := &recordingSender{}
	mock := quartz.NewMock(t)

	base := []Option{
		WithStore(store),
		WithSender(sender),
		WithClock(mock),
		WithSampleWriterCount(1),
	}
	svc := New(append(base, opts...)...)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("service start: %v", err)
	}
	t.Cleanup(svc.Stop)

	return svc, sender, store, mock
}

func downtownRing() []model.LatLng {
	return []model.LatLng{
		{Lat: 51.50, Lng: -0.13},
		{Lat: 51.50, Lng: -0.12},
		{Lat: 51.51, Lng: -0.12},
		{Lat: 51.51, Lng: -0.13},
	}
}

func TestLoginAndDisconnect(t *testing.T) {
	convey.Convey("Given a running service", t, func() {
		ctx := context.Background()
		svc, sender, _, _ := newTestService(t)

		convey.Convey("When a client logs in", func() {
			convey.So(svc.Login(ctx, "conn-1", "alice"), convey.ShouldBeNil)

			convey.Convey("Then the user list is broadcast", func() {
				users := sender.of(ws.EventUsers)
				convey.So(len(users), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the login name is blank", func() {
			err := svc.Login(ctx, "conn-1", "   ")
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(sender.of(ws.EventUsers), convey.ShouldBeEmpty)
		})

		convey.Convey("When a logged-in client disconnects", func() {
			convey.So(svc.Login(ctx, "conn-1", "alice"), convey.ShouldBeNil)
			sender.reset()

			svc.Disconnect(ctx, "conn-1")

			convey.Convey("Then the user list is broadcast again", func() {
				convey.So(len(sender.of(ws.EventUsers)), convey.ShouldEqual, 1)
			})

			convey.Convey("Then disconnecting an unknown connection stays silent", func() {
				sender.reset()
				svc.Disconnect(ctx, "ghost")
				convey.So(sender.of(ws.EventUsers), convey.ShouldBeEmpty)
			})
		})
	})
}

func TestUpdateLocationGeofencing(t *testing.T) {
	convey.Convey("Given a service with one zone and a logged-in driver", t, func() {
		ctx := context.Background()
		svc, sender, _, _ := newTestService(t)

		_, err := svc.CreateZone(ctx, "Downtown", downtownRing())
		convey.So(err, convey.ShouldBeNil)
		convey.So(svc.Login(ctx, "conn-1", "alice"), convey.ShouldBeNil)
		sender.reset()

		outside := model.LatLng{Lat: 51.40, Lng: -0.20}
		inside := model.LatLng{Lat: 51.505, Lng: -0.125}

		convey.Convey("When the driver moves into the zone", func() {
			convey.So(svc.UpdateLocation(ctx, "conn-1", inside, 30), convey.ShouldBeNil)

			convey.Convey("Then a zoneEnter is unicast to the driver", func() {
				enters := sender.of(ws.EventZoneEnter)
				convey.So(len(enters), convey.ShouldEqual, 1)
				convey.So(enters[0].ConnectionID, convey.ShouldEqual, "conn-1")
			})

			convey.Convey("And moving again inside produces no further transition", func() {
				sender.reset()
				convey.So(svc.UpdateLocation(ctx, "conn-1", model.LatLng{Lat: 51.506, Lng: -0.126}, 30), convey.ShouldBeNil)
				convey.So(sender.of(ws.EventZoneEnter), convey.ShouldBeEmpty)
				convey.So(sender.of(ws.EventZoneExit), convey.ShouldBeEmpty)
			})

			convey.Convey("And moving out produces exactly one zoneExit", func() {
				sender.reset()
				convey.So(svc.UpdateLocation(ctx, "conn-1", outside, 30), convey.ShouldBeNil)

				exits := sender.of(ws.EventZoneExit)
				convey.So(len(exits), convey.ShouldEqual, 1)
				convey.So(exits[0].ConnectionID, convey.ShouldEqual, "conn-1")
				convey.So(sender.of(ws.EventZoneEnter), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When the driver moves outside the zone", func() {
			convey.So(svc.UpdateLocation(ctx, "conn-1", outside, 30), convey.ShouldBeNil)
			convey.So(sender.of(ws.EventZoneEnter), convey.ShouldBeEmpty)

			convey.Convey("Then the user list still goes out", func() {
				convey.So(len(sender.of(ws.EventUsers)), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When an unknown connection reports a location", func() {
			err := svc.UpdateLocation(ctx, "ghost", inside, 30)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestReportIncidentFanOut(t *testing.T) {
	convey.Convey("Given drivers at known distances from an incident", t, func() {
		ctx := context.Background()

		origin := model.LatLng{Lat: 0, Lng: 0}
		near := model.LatLng{Lat: 0.04, Lng: 0}  // ~4.4 km
		far := model.LatLng{Lat: 0.06, Lng: 0}   // ~6.7 km
		nearDist := geo.DistanceMeters(origin, near)

		convey.Convey("With the default 5 km radius", func() {
			svc, sender, _, _ := newTestService(t)

			convey.So(svc.Login(ctx, "reporter", "rita"), convey.ShouldBeNil)
			convey.So(svc.Login(ctx, "near", "nina"), convey.ShouldBeNil)
			convey.So(svc.Login(ctx, "far", "fred"), convey.ShouldBeNil)
			convey.So(svc.Login(ctx, "nowhere", "nemo"), convey.ShouldBeNil)

			convey.So(svc.UpdateLocation(ctx, "reporter", origin, 10), convey.ShouldBeNil)
			convey.So(svc.UpdateLocation(ctx, "near", near, 10), convey.ShouldBeNil)
			convey.So(svc.UpdateLocation(ctx, "far", far, 10), convey.ShouldBeNil)
			// "nowhere" never reported a location.
			sender.reset()

			convey.So(svc.ReportIncident(ctx, "reporter", "accident", origin, 3, "pileup"), convey.ShouldBeNil)

			alerts := sender.of(ws.EventIncidentAlert)
			alerted := map[string]bool{}
			for _, a := range alerts {
				alerted[a.ConnectionID] = true
			}

			convey.Convey("Then drivers inside the radius are alerted", func() {
				convey.So(alerted["reporter"], convey.ShouldBeTrue)
				convey.So(alerted["near"], convey.ShouldBeTrue)
			})

			convey.Convey("Then drivers outside the radius are not", func() {
				convey.So(alerted["far"], convey.ShouldBeFalse)
			})

			convey.Convey("Then drivers with no known location are not", func() {
				convey.So(alerted["nowhere"], convey.ShouldBeFalse)
			})
		})

		convey.Convey("With the radius exactly at a driver's distance", func() {
			svc, sender, _, _ := newTestService(t, WithIncidentRadius(nearDist))

			convey.So(svc.Login(ctx, "near", "nina"), convey.ShouldBeNil)
			convey.So(svc.UpdateLocation(ctx, "near", near, 10), convey.ShouldBeNil)
			sender.reset()

			convey.So(svc.ReportIncident(ctx, "near", "hazard", origin, 2, "debris"), convey.ShouldBeNil)

			convey.Convey("Then the bound is exclusive and no alert goes out", func() {
				convey.So(sender.of(ws.EventIncidentAlert), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When the incident is invalid", func() {
			svc, sender, store, _ := newTestService(t)

			err := svc.ReportIncident(ctx, "conn-1", "ufo", origin, 3, "weird")
			convey.So(err, convey.ShouldEqual, model.ErrInvalidIncidentType)
			convey.So(sender.of(ws.EventIncidentAlert), convey.ShouldBeEmpty)

			incidents, _ := store.UnresolvedIncidentsSince(ctx, time.Time{})
			convey.So(incidents, convey.ShouldBeEmpty)
		})
	})
}

func TestRecomputeCongestion(t *testing.T) {
	convey.Convey("Given a service with one zone and a subscribed driver", t, func() {
		ctx := context.Background()
		svc, sender, store, mock := newTestService(t)

		zone, err := svc.CreateZone(ctx, "Downtown", downtownRing())
		convey.So(err, convey.ShouldBeNil)

		inside := model.LatLng{Lat: 51.505, Lng: -0.125}

		convey.Convey("When recent samples average 10 km/h", func() {
			convey.So(svc.Login(ctx, "conn-1", "alice"), convey.ShouldBeNil)
			convey.So(svc.UpdateLocation(ctx, "conn-1", inside, 10), convey.ShouldBeNil)
			sender.reset()

			now := mock.Now()
			for _, speed := range []float64{5, 10, 15} {
				convey.So(store.InsertSample(ctx, model.TrafficSample{
					Location: inside, SpeedKmh: speed, Timestamp: now,
				}), convey.ShouldBeNil)
			}

			convey.So(svc.RecomputeCongestion(ctx), convey.ShouldBeNil)

			convey.Convey("Then the level is persisted as 4.5", func() {
				zones, _ := store.ListZones(ctx)
				convey.So(zones[0].CongestionLevel, convey.ShouldAlmostEqual, 4.5, 1e-9)
			})

			convey.Convey("Then the subscriber gets a congestionUpdate", func() {
				updates := sender.of(ws.EventCongestionUpdate)
				convey.So(len(updates), convey.ShouldEqual, 1)
				convey.So(updates[0].ConnectionID, convey.ShouldEqual, "conn-1")
			})

			convey.Convey("Then recomputing twice on the same data is idempotent", func() {
				convey.So(svc.RecomputeCongestion(ctx), convey.ShouldBeNil)
				zones, _ := store.ListZones(ctx)
				convey.So(zones[0].CongestionLevel, convey.ShouldAlmostEqual, 4.5, 1e-9)
			})
		})

		convey.Convey("When samples fall outside the window", func() {
			stale := mock.Now().Add(-10 * time.Minute)
			convey.So(store.InsertSample(ctx, model.TrafficSample{
				Location: inside, SpeedKmh: 5, Timestamp: stale,
			}), convey.ShouldBeNil)

			convey.So(svc.RecomputeCongestion(ctx), convey.ShouldBeNil)

			convey.Convey("Then the zone reads as level 0", func() {
				zones, _ := store.ListZones(ctx)
				convey.So(zones[0].CongestionLevel, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When there are no samples at all", func() {
			convey.So(svc.RecomputeCongestion(ctx), convey.ShouldBeNil)

			zones, _ := store.ListZones(ctx)
			convey.So(zones[0].ID, convey.ShouldEqual, zone.ID)
			convey.So(zones[0].CongestionLevel, convey.ShouldEqual, 0)
		})
	})
}

// faultStore wraps a working store and fails selected calls, keyed by the
// polygon's first vertex latitude or by zone ID.
type faultStore struct {
	repository.Store

	failQueryLat  float64
	failPersistID string
}

func (f *faultStore) SamplesInPolygonSince(ctx context.Context, polygon []model.LatLng, since time.Time) ([]model.TrafficSample, error) {
	if f.failQueryLat != 0 && len(polygon) > 0 && polygon[0].Lat == f.failQueryLat {
		return nil, errors.New("query timeout")
	}
	return f.Store.SamplesInPolygonSince(ctx, polygon, since)
}

func (f *faultStore) UpdateZoneCongestion(ctx context.Context, zoneID string, level float64) error {
	if f.failPersistID != "" && zoneID == f.failPersistID {
		return errors.New("write timeout")
	}
	return f.Store.UpdateZoneCongestion(ctx, zoneID, level)
}

func TestRecomputeCongestionFaultIsolation(t *testing.T) {
	convey.Convey("Given two zones with subscribed drivers and recent samples", t, func() {
		ctx := context.Background()

		mem := repository.NewMemoryStore()
		fs := &faultStore{Store: mem}
		sender := &recordingSender{}
		mock := quartz.NewMock(t)

		svc := New(
			WithStore(fs),
			WithSender(sender),
			WithClock(mock),
			WithSampleWriterCount(1),
		)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		t.Cleanup(svc.Stop)

		uptownRing := []model.LatLng{
			{Lat: 51.60, Lng: -0.13},
			{Lat: 51.60, Lng: -0.12},
			{Lat: 51.61, Lng: -0.12},
			{Lat: 51.61, Lng: -0.13},
		}
		downtown, err := svc.CreateZone(ctx, "Downtown", downtownRing())
		convey.So(err, convey.ShouldBeNil)
		uptown, err := svc.CreateZone(ctx, "Uptown", uptownRing)
		convey.So(err, convey.ShouldBeNil)

		inDowntown := model.LatLng{Lat: 51.505, Lng: -0.125}
		inUptown := model.LatLng{Lat: 51.605, Lng: -0.125}

		// Driver speeds match the seeded samples so the asynchronously
		// persisted location samples cannot shift either average.
		convey.So(svc.Login(ctx, "conn-dt", "alice"), convey.ShouldBeNil)
		convey.So(svc.UpdateLocation(ctx, "conn-dt", inDowntown, 10), convey.ShouldBeNil)
		convey.So(svc.Login(ctx, "conn-up", "bob"), convey.ShouldBeNil)
		convey.So(svc.UpdateLocation(ctx, "conn-up", inUptown, 60), convey.ShouldBeNil)

		now := mock.Now()
		for i := 0; i < 2; i++ {
			convey.So(mem.InsertSample(ctx, model.TrafficSample{Location: inDowntown, SpeedKmh: 10, Timestamp: now}), convey.ShouldBeNil)
			convey.So(mem.InsertSample(ctx, model.TrafficSample{Location: inUptown, SpeedKmh: 60, Timestamp: now}), convey.ShouldBeNil)
		}

		convey.So(svc.RecomputeCongestion(ctx), convey.ShouldBeNil)
		sender.reset()

		levelOf := func(zoneID string) float64 {
			zones, err := mem.ListZones(ctx)
			convey.So(err, convey.ShouldBeNil)
			for _, z := range zones {
				if z.ID == zoneID {
					return z.CongestionLevel
				}
			}
			t.Fatalf("zone %s not found", zoneID)
			return 0
		}
		convey.So(levelOf(downtown.ID), convey.ShouldAlmostEqual, 4.5, 1e-9)
		convey.So(levelOf(uptown.ID), convey.ShouldAlmostEqual, 2.0, 1e-9)

		convey.Convey("When the sample query fails for one zone", func() {
			fs.failQueryLat = 51.50

			convey.So(svc.RecomputeCongestion(ctx), convey.ShouldBeNil)

			convey.Convey("Then the failed zone keeps its prior level", func() {
				convey.So(levelOf(downtown.ID), convey.ShouldAlmostEqual, 4.5, 1e-9)
			})

			convey.Convey("Then the sibling zone is still recomputed and notified", func() {
				convey.So(levelOf(uptown.ID), convey.ShouldAlmostEqual, 2.0, 1e-9)

				updates := sender.of(ws.EventCongestionUpdate)
				convey.So(len(updates), convey.ShouldEqual, 1)
				convey.So(updates[0].ConnectionID, convey.ShouldEqual, "conn-up")
			})
		})

		convey.Convey("When persisting fails for one zone", func() {
			fs.failPersistID = downtown.ID
			for i := 0; i < 2; i++ {
				convey.So(mem.InsertSample(ctx, model.TrafficSample{Location: inDowntown, SpeedKmh: 0, Timestamp: mock.Now()}), convey.ShouldBeNil)
			}

			convey.So(svc.RecomputeCongestion(ctx), convey.ShouldBeNil)

			convey.Convey("Then the stored level is untouched and its driver not notified", func() {
				convey.So(levelOf(downtown.ID), convey.ShouldAlmostEqual, 4.5, 1e-9)
				for _, u := range sender.of(ws.EventCongestionUpdate) {
					convey.So(u.ConnectionID, convey.ShouldNotEqual, "conn-dt")
				}
			})

			convey.Convey("Then the sibling zone is still notified", func() {
				updates := sender.of(ws.EventCongestionUpdate)
				convey.So(len(updates), convey.ShouldEqual, 1)
				convey.So(updates[0].ConnectionID, convey.ShouldEqual, "conn-up")
			})
		})
	})
}

func TestEvictIdle(t *testing.T) {
	convey.Convey("Given a service with a 30 minute session TTL", t, func() {
		ctx := context.Background()
		svc, sender, _, mock := newTestService(t)

		convey.So(svc.Login(ctx, "idle", "ivan"), convey.ShouldBeNil)
		mock.Advance(29 * time.Minute)
		convey.So(svc.Login(ctx, "fresh", "fiona"), convey.ShouldBeNil)
		mock.Advance(2 * time.Minute)
		sender.reset()

		convey.Convey("When the janitor runs", func() {
			convey.So(svc.EvictIdle(ctx), convey.ShouldBeNil)

			convey.Convey("Then only the idle session is gone", func() {
				stats := svc.GetStats()
				convey.So(stats["sessions"], convey.ShouldEqual, 1)
			})

			convey.Convey("Then the remaining users are broadcast", func() {
				convey.So(len(sender.of(ws.EventUsers)), convey.ShouldEqual, 1)
			})

			convey.Convey("Then an immediate second run changes nothing", func() {
				sender.reset()
				convey.So(svc.EvictIdle(ctx), convey.ShouldBeNil)
				convey.So(sender.of(ws.EventUsers), convey.ShouldBeEmpty)
			})
		})
	})
}

func TestReadAPI(t *testing.T) {
	convey.Convey("Given a service with stored history", t, func() {
		ctx := context.Background()
		svc, _, store, mock := newTestService(t)

		now := mock.Now()

		convey.Convey("When incidents of mixed age exist", func() {
			fresh := model.Incident{Type: model.IncidentHazard, Location: model.LatLng{Lat: 51.5, Lng: -0.12}, Severity: 2, Description: "debris", Timestamp: now}
			old := fresh
			old.Timestamp = now.Add(-25 * time.Hour)

			_, _ = store.InsertIncident(ctx, fresh)
			_, _ = store.InsertIncident(ctx, old)

			views, err := svc.UnresolvedIncidents(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(views), convey.ShouldEqual, 1)
		})

		convey.Convey("When samples of mixed age exist", func() {
			_ = store.InsertSample(ctx, model.TrafficSample{Location: model.LatLng{Lat: 51.5, Lng: -0.12}, SpeedKmh: 20, Timestamp: now})
			_ = store.InsertSample(ctx, model.TrafficSample{Location: model.LatLng{Lat: 51.5, Lng: -0.12}, SpeedKmh: 30, Timestamp: now.Add(-2 * time.Hour)})

			views, err := svc.Heatmap(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(views), convey.ShouldEqual, 1)
		})

		convey.Convey("When zones are listed", func() {
			_, err := svc.CreateZone(ctx, "Downtown", downtownRing())
			convey.So(err, convey.ShouldBeNil)

			views, err := svc.Zones(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(views), convey.ShouldEqual, 1)
			convey.So(views[0].Name, convey.ShouldEqual, "Downtown")
		})

		convey.Convey("When a duplicate zone is created", func() {
			_, err := svc.CreateZone(ctx, "Downtown", downtownRing())
			convey.So(err, convey.ShouldBeNil)

			_, err = svc.CreateZone(ctx, "Downtown", downtownRing())
			convey.So(err, convey.ShouldEqual, repository.ErrDuplicateZone)
		})
	})
}
