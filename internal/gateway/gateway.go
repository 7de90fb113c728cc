// Package gateway is the duplex transport in front of the dispatcher.
// Each client holds one long-lived WebSocket connection; messages are JSON
// frames of the form {id, method, params} in and {id, result|error} out,
// plus a client-initiated {id, cancel:true} frame. Connection close
// cancels every correlation id opened from it.
//
// Each connection runs a readLoop and a writeLoop over a buffered send
// channel. Connection auth is an optional signed bearer token verified at
// upgrade time (auth.go); gateway methods are opaque params forwarded
// verbatim to the dispatcher.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nexuscore/agentrt/internal/dispatcher"
	"github.com/nexuscore/agentrt/internal/rterr"
)

const (
	maxPayloadBytes  = 1 << 20
	writeWait        = 10 * time.Second
	pongWait         = 45 * time.Second
	pingInterval     = 20 * time.Second
	sendBufferLength = 64
)

// frame is the wire shape shared by requests and responses.
type frame struct {
	ID     string          `json:"id"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Cancel bool            `json:"cancel,omitempty"`
	Result any             `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Server hosts the dispatcher behind a loopback WebSocket listener.
type Server struct {
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	auth       *TokenVerifier
}

// NewServer constructs a gateway Server in front of an already-sealed
// dispatcher.
func NewServer(d *dispatcher.Dispatcher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default().With("component", "gateway")
	}
	return &Server{
		dispatcher: d,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// SetAuth installs connection-token verification. A nil verifier leaves
// the gateway open to any loopback client. Call before serving.
func (s *Server) SetAuth(v *TokenVerifier) {
	s.auth = v
}

// ServeHTTP upgrades the connection and runs its duplex session until close.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.auth != nil {
		if _, err := s.auth.Verify(bearerToken(r)); err != nil {
			s.logger.Warn("rejected unauthenticated connection", "remote", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		server: s,
		conn:   conn,
		send:   make(chan []byte, sendBufferLength),
		ctx:    ctx,
		cancel: cancel,
		id:     uuid.NewString(),
	}
	sess.run()
}

// session is one connection's duplex loop and the set of correlation ids it
// opened, so that connection close can cancel all of them.
type session struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	id     string

	mu          sync.Mutex
	openCorrIDs map[string]struct{}
}

func (s *session) run() {
	defer s.close()
	go s.writeLoop()
	s.readLoop()
}

func (s *session) close() {
	s.cancel()
	s.mu.Lock()
	ids := make([]string, 0, len(s.openCorrIDs))
	for id := range s.openCorrIDs {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.server.dispatcher.Cancel(id)
	}
	// send is not closed: in-flight handlers may still attempt a write,
	// and writeLoop exits via ctx. The channel is reclaimed with the
	// session.
	_ = s.conn.Close()
}

func (s *session) readLoop() {
	s.conn.SetReadLimit(maxPayloadBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.sendError("", rterr.KindFramingError, err.Error())
			return
		}
		if f.ID == "" {
			s.sendError("", rterr.KindFramingError, "missing id")
			return
		}
		if f.Cancel {
			s.server.dispatcher.Cancel(f.ID)
			s.forget(f.ID)
			continue
		}
		go s.handleRequest(f)
	}
}

func (s *session) handleRequest(f frame) {
	var params map[string]any
	if len(f.Params) > 0 {
		if err := json.Unmarshal(f.Params, &params); err != nil {
			s.sendError(f.ID, rterr.KindInvalidParams, err.Error())
			return
		}
	}
	s.track(f.ID)
	defer s.forget(f.ID)

	result, err := s.server.dispatcher.Dispatch(s.ctx, dispatcher.Request{
		CorrelationID: f.ID,
		Method:        f.Method,
		Params:        params,
	})
	if err != nil {
		s.sendErrorFromOutcome(f.ID, err)
		return
	}
	s.sendResult(f.ID, result)
}

func (s *session) track(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openCorrIDs == nil {
		s.openCorrIDs = make(map[string]struct{})
	}
	s.openCorrIDs[id] = struct{}{}
}

func (s *session) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.openCorrIDs, id)
}

func (s *session) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-s.send:
			if !ok {
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *session) sendResult(id string, result any) {
	s.writeFrame(frame{ID: id, Result: result})
}

func (s *session) sendError(id string, kind rterr.Kind, message string) {
	s.writeFrame(frame{ID: id, Error: &wireError{Kind: string(kind), Message: message}})
}

func (s *session) sendErrorFromOutcome(id string, err error) {
	var rerr *rterr.Error
	if errors.As(err, &rerr) {
		s.sendError(id, rerr.Kind, rerr.Message)
		return
	}
	s.sendError(id, "internal", err.Error())
}

func (s *session) writeFrame(f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	select {
	case s.send <- data:
	case <-s.ctx.Done():
	}
}
