package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/gridlock/internal/domain/model"
	"github.com/okian/gridlock/internal/domain/registry"
	"github.com/okian/gridlock/internal/domain/types"
	"github.com/okian/gridlock/pkg/logger"
	"github.com/okian/gridlock/pkg/metrics"
)

// Default gateway configuration constants.
const (
	defaultRateLimit = 100
	rateLimitWindow  = time.Minute
)

// User-facing notice messages. One generic message covers internal
// failures so nothing about the failure leaks to the client.
const (
	msgInvalidLogin     = "Invalid username"
	msgInvalidLocation  = "Invalid location data"
	msgInvalidIncident  = "Invalid incident data"
	msgRateLimited      = "Rate limit exceeded"
	msgUnknownEvent     = "Unknown event"
	msgMalformedPayload = "Malformed event payload"
	msgGenericError     = "An error occurred processing your request"
)

// Dependencies is what the gateway needs from the core service. Calls are
// made from the connection's read loop, so per-connection ordering is
// inherited from the transport.
type Dependencies interface {
	// Login registers a display name for the connection and broadcasts the
	// updated user list.
	Login(ctx context.Context, connectionID, displayName string) error

	// UpdateLocation records a position/speed report and runs geofencing.
	UpdateLocation(ctx context.Context, connectionID string, loc model.LatLng, speedKmh float64) error

	// ReportIncident validates, persists and fans out an incident report.
	ReportIncident(ctx context.Context, connectionID, kind string, loc model.LatLng, severity int, description string) error

	// Disconnect removes the session and broadcasts the updated user list.
	Disconnect(ctx context.Context, connectionID string)

	// ValidationMessage maps a rejected-input error to its client notice,
	// or returns false for errors that must stay generic.
	ValidationMessage(err error) (string, bool)
}

// Gateway upgrades HTTP requests to WebSocket connections and pumps their
// events into the core service.
type Gateway struct {
	deps Dependencies
	hub  *Hub

	upgrader      websocket.Upgrader
	rateLimit     int
	allowedOrigin string
	clock         quartz.Clock
	logger        logger.Logger
}

// GatewayOption applies a configuration option to the Gateway.
type GatewayOption func(*Gateway)

// WithRateLimit sets the per-connection inbound event ceiling per minute.
func WithRateLimit(limit int) GatewayOption {
	return func(g *Gateway) {
		if limit > 0 {
			g.rateLimit = limit
		}
	}
}

// WithAllowedOrigin restricts WebSocket upgrades to one origin. "*" accepts
// any origin.
func WithAllowedOrigin(origin string) GatewayOption {
	return func(g *Gateway) {
		if origin != "" {
			g.allowedOrigin = origin
		}
	}
}

// WithClock sets the clock used by per-connection rate limiters.
func WithClock(clock quartz.Clock) GatewayOption {
	return func(g *Gateway) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithGatewayLogger sets a custom logger for the gateway.
func WithGatewayLogger(l logger.Logger) GatewayOption {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGateway creates a gateway that dispatches into deps and fans out
// through hub.
func NewGateway(deps Dependencies, hub *Hub, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		deps:          deps,
		hub:           hub,
		rateLimit:     defaultRateLimit,
		allowedOrigin: "*",
		clock:         quartz.NewReal(),
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.logger == nil {
		g.logger = logger.Get().Named("gateway")
	}

	g.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if g.allowedOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == g.allowedOrigin
		},
	}

	return g
}

// HandleWS handles GET /ws upgrade requests. It owns the connection's whole
// lifecycle: one read loop, cleanup on exit, and per-connection rate
// limiting. A failure in one connection never touches another.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	ctx := r.Context()
	connectionID := uuid.New().String()

	g.hub.Add(connectionID, conn)
	metrics.UpdateActiveConnections(g.hub.Len())
	g.logger.Info(ctx, "client connected", logger.String("connection_id", connectionID))

	defer func() {
		g.hub.Remove(connectionID)
		_ = conn.Close()
		g.deps.Disconnect(ctx, connectionID)
		metrics.UpdateActiveConnections(g.hub.Len())
		g.logger.Info(ctx, "client disconnected", logger.String("connection_id", connectionID))
	}()

	limiter := newSlidingWindow(g.rateLimit, rateLimitWindow, g.clock)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Warn(ctx, "read error", logger.String("connection_id", connectionID), logger.Error(err))
			}
			return
		}

		// Every inbound frame counts against the limit, parseable or not,
		// so malformed spam cannot dodge the limiter.
		if !limiter.Allow() {
			metrics.RecordRateLimited()
			g.notify(connectionID, msgRateLimited)
			continue
		}

		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			metrics.RecordRejectedEvent("malformed")
			g.notify(connectionID, msgMalformedPayload)
			continue
		}

		metrics.RecordInboundEvent(env.Event)

		g.dispatch(ctx, connectionID, env)
	}
}

// dispatch routes one validated envelope into the core service. Component
// failures surface as a single generic notice; the connection stays open.
func (g *Gateway) dispatch(ctx context.Context, connectionID string, env Envelope) {
	switch env.Event {
	case EventLogin:
		var p loginPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			metrics.RecordRejectedEvent("malformed")
			g.notify(connectionID, msgInvalidLogin)
			return
		}
		if err := g.deps.Login(ctx, connectionID, p.DisplayName); err != nil {
			g.notifyError(connectionID, err, msgInvalidLogin)
		}

	case EventUpdateLocation:
		var p locationPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Location == nil {
			metrics.RecordRejectedEvent("malformed")
			g.notify(connectionID, msgInvalidLocation)
			return
		}
		loc := model.LatLng{Lat: p.Location.Lat, Lng: p.Location.Lng}
		if err := g.deps.UpdateLocation(ctx, connectionID, loc, p.SpeedKmh); err != nil {
			g.notifyError(connectionID, err, msgInvalidLocation)
		}

	case EventReportIncident:
		var p incidentPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Location == nil {
			metrics.RecordRejectedEvent("malformed")
			g.notify(connectionID, msgInvalidIncident)
			return
		}
		loc := model.LatLng{Lat: p.Location.Lat, Lng: p.Location.Lng}
		if err := g.deps.ReportIncident(ctx, connectionID, p.Type, loc, p.Severity, p.Description); err != nil {
			g.notifyError(connectionID, err, msgInvalidIncident)
		}

	default:
		metrics.RecordRejectedEvent("unknown_event")
		g.notify(connectionID, msgUnknownEvent)
	}
}

// notifyError translates a service error into a client notice. Unknown
// sessions are deliberately silent no-ops per the error policy; rejected
// input gets its specific message; everything else stays generic.
func (g *Gateway) notifyError(connectionID string, err error, invalidMsg string) {
	if errors.Is(err, registry.ErrUnknownSession) {
		g.logger.Debug(context.Background(), "event for unknown session dropped",
			logger.String("connection_id", connectionID))
		return
	}
	if errors.Is(err, registry.ErrInvalidInput) {
		metrics.RecordRejectedEvent("invalid_input")
		g.notify(connectionID, invalidMsg)
		return
	}
	if msg, ok := g.deps.ValidationMessage(err); ok {
		metrics.RecordRejectedEvent("validation")
		g.notify(connectionID, msg)
		return
	}

	g.logger.Error(context.Background(), "event processing failed",
		logger.String("connection_id", connectionID),
		logger.Error(err),
	)
	g.notify(connectionID, msgGenericError)
}

// notify sends an error notice to the originating connection only.
func (g *Gateway) notify(connectionID, message string) {
	g.hub.Unicast(connectionID, EventError, types.ErrorEvent{Message: message})
}
