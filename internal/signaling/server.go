package signaling

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/medconnect/signaling-relay/internal/auth"
	"github.com/medconnect/signaling-relay/internal/config"
	"github.com/medconnect/signaling-relay/internal/metrics"
	"github.com/medconnect/signaling-relay/internal/origin"
	"github.com/medconnect/signaling-relay/internal/ratelimit"
)

// Server upgrades HTTP requests to signaling WebSocket connections.
//
// It enforces authentication (api_key/jwt) before a connection reaches the
// hub, plus per-connection limits so idle unauthenticated connections and
// large or high-rate frames are rejected at the edge. Room semantics live in
// the hub; the server only guards the door.
type Server struct {
	cfg      config.Config
	hub      *Hub
	verifier auth.Verifier
	upgrader websocket.Upgrader
	log      *slog.Logger
	m        *metrics.Metrics
}

func NewServer(cfg config.Config, hub *Hub, logger *slog.Logger, m *metrics.Metrics) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}

	var verifier auth.Verifier
	if cfg.AuthMode != config.AuthModeNone {
		v, err := auth.NewVerifier(cfg)
		if err != nil {
			return nil, err
		}
		verifier = v
	}

	return &Server{
		cfg:      cfg,
		hub:      hub,
		verifier: verifier,
		log:      logger,
		m:        m,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				originHeader := strings.TrimSpace(r.Header.Get("Origin"))
				if originHeader == "" {
					// Non-browser clients don't send Origin.
					return true
				}
				normalized, host, ok := origin.NormalizeHeader(originHeader)
				return ok && origin.IsAllowed(normalized, host, r.Host, cfg.AllowedOrigins)
			},
		},
	}, nil
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /signal", s.ServeHTTP)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	conn.SetReadLimit(s.cfg.MaxMessageBytes)

	subject, ok := s.authenticate(conn, r)
	if !ok {
		_ = conn.Close()
		return
	}

	c := &client{
		hub:     s.hub,
		conn:    conn,
		subject: subject,
		send:    make(chan []byte, s.cfg.SendQueueLength),
		limiter: ratelimit.NewTokenBucket(
			ratelimit.RealClock{},
			int64(s.cfg.MaxMessagesPerSecond),
			int64(s.cfg.MaxMessagesPerSecond),
		),
		idleTimeout:  s.cfg.WSIdleTimeout,
		pingInterval: s.cfg.WSPingInterval,
		maxFrameSize: s.cfg.MaxMessageBytes,
		log:          s.log,
		m:            s.m,
	}

	select {
	case s.hub.register <- c:
	case <-s.hub.quit:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// authenticate resolves the caller's credential from the query string or,
// failing that, from a first `auth` frame sent within the auth timeout. It
// returns the authenticated subject (empty for api_key/none modes).
func (s *Server) authenticate(conn *websocket.Conn, r *http.Request) (string, bool) {
	if s.verifier == nil {
		return "", true
	}

	cred, err := auth.CredentialFromQuery(s.cfg.AuthMode, r.URL.Query())
	if err == nil {
		subject, err := s.verifier.Verify(cred)
		if err != nil {
			s.m.Inc(metrics.AuthFailures)
			writeClose(conn, websocket.ClosePolicyViolation, "invalid credentials")
			return "", false
		}
		return subject, true
	}
	if !errors.Is(err, auth.ErrMissingCredentials) {
		writeClose(conn, websocket.CloseInternalServerErr, "invalid auth configuration")
		return "", false
	}

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.AuthTimeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		if isTimeout(err) {
			s.m.Inc(metrics.AuthFailures)
			writeClose(conn, websocket.ClosePolicyViolation, "authentication timeout")
		}
		return "", false
	}
	if msgType != websocket.TextMessage {
		s.m.Inc(metrics.AuthFailures)
		writeClose(conn, websocket.ClosePolicyViolation, "authentication required")
		return "", false
	}

	ev, err := parseClientEvent(data)
	if err != nil || ev.Event != eventAuth {
		s.m.Inc(metrics.AuthFailures)
		writeClose(conn, websocket.ClosePolicyViolation, "authentication required")
		return "", false
	}

	cred, err = auth.CredentialFromAuthEvent(s.cfg.AuthMode, ev.APIKey, ev.Token)
	if err != nil {
		s.m.Inc(metrics.AuthFailures)
		writeClose(conn, websocket.ClosePolicyViolation, "missing credentials")
		return "", false
	}
	subject, err := s.verifier.Verify(cred)
	if err != nil {
		s.m.Inc(metrics.AuthFailures)
		writeClose(conn, websocket.ClosePolicyViolation, "invalid credentials")
		return "", false
	}
	return subject, true
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
