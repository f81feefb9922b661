// Package server runs the tracker's monitor: a websocket hub that streams
// control telemetry, accepts manual stop/home/preset overrides and, when
// the video source exposes RTP, offers a WebRTC preview.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	pwebrtc "github.com/pion/webrtc/v3"

	"ptz-tracker/internal/logging"
	"ptz-tracker/internal/protocol"
	"ptz-tracker/internal/webrtc"
)

const (
	readLimit    = 65536
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// Commander is the manual override surface a monitor may drive.
type Commander interface {
	Stop() error
	Home() error
	RecallPreset(preset int) error
	SavePreset(preset int) error
}

// Config for the monitor
type Config struct {
	ListenAddr string
	VideoURL   string
	WebRTC     webrtc.Config
}

// Server is the monitor hub
type Server struct {
	cfg      Config
	cmd      Commander
	rtp      <-chan []byte
	upgrader websocket.Upgrader

	clients   map[*Client]bool
	clientsMu sync.RWMutex

	lastMu sync.Mutex
	last   *protocol.TelemetryPayload

	httpSrv  *http.Server
	listener net.Listener

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Client represents a connected WebSocket client
type Client struct {
	id      string
	conn    *websocket.Conn
	server  *Server
	preview *webrtc.Session
	send    chan []byte
	rtpChan chan []byte

	mu     sync.Mutex
	closed bool
}

// New creates a monitor. cmd may be nil, in which case override requests
// are answered with an error. rtp may be nil to disable the preview.
func New(cfg Config, cmd Commander, rtp <-chan []byte) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if len(cfg.WebRTC.ICEServers) == 0 {
		cfg.WebRTC = webrtc.DefaultConfig()
	}
	return &Server{
		cfg:     cfg,
		cmd:     cmd,
		rtp:     rtp,
		clients: make(map[*Client]bool),
		done:    make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // local tool
			},
		},
	}
}

// Handler returns the monitor's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.httpSrv = &http.Server{Handler: s.Handler()}

	if s.rtp != nil {
		s.wg.Add(1)
		go s.broadcastRTP()
	}

	logging.Logf("Monitor listening on %s", ln.Addr())
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Logf("Monitor serve error: %v", err)
		}
	}()
	return nil
}

// Addr is the bound listen address, valid after Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts down HTTP, ends the RTP fan-out and disconnects every client.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	s.stopOnce.Do(func() { close(s.done) })
	s.wg.Wait()

	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
		delete(s.clients, client)
	}
	s.clientsMu.Unlock()
	return err
}

// Publish broadcasts one telemetry sample to every client and keeps it
// for /status.
func (s *Server) Publish(t protocol.TelemetryPayload) {
	s.lastMu.Lock()
	s.last = &t
	s.lastMu.Unlock()

	data, err := encode(protocol.TypeTelemetry, t)
	if err != nil {
		logging.Logf("Failed to encode telemetry: %v", err)
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for client := range s.clients {
		client.enqueue(data)
	}
}

// ClientCount returns the number of connected monitors.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// broadcastRTP fans packets out to every previewing client until Stop or
// until the source closes its channel.
func (s *Server) broadcastRTP() {
	defer s.wg.Done()
	for {
		var packet []byte
		select {
		case <-s.done:
			return
		case p, ok := <-s.rtp:
			if !ok {
				return
			}
			packet = p
		}

		s.clientsMu.RLock()
		for client := range s.clients {
			if client.rtpChan == nil {
				continue
			}
			select {
			case client.rtpChan <- packet:
			default:
				// slow consumer, drop
			}
		}
		s.clientsMu.RUnlock()
	}
}

type statusResponse struct {
	CameraConnected bool                       `json:"camera_connected"`
	VideoURL        string                     `json:"video_url,omitempty"`
	Clients         int                        `json:"clients"`
	Telemetry       *protocol.TelemetryPayload `json:"telemetry,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.lastMu.Lock()
	resp := statusResponse{
		CameraConnected: s.cmd != nil,
		VideoURL:        s.cfg.VideoURL,
		Clients:         s.ClientCount(),
		Telemetry:       s.last,
	}
	s.lastMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Logf("Failed to write status: %v", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Logf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		id:     uuid.NewString(),
		conn:   conn,
		server: s,
		send:   make(chan []byte, 256),
	}
	if s.rtp != nil {
		client.rtpChan = make(chan []byte, 500)
	}

	s.clientsMu.Lock()
	s.clients[client] = true
	s.clientsMu.Unlock()

	go client.writePump()
	go client.readPump()

	client.sendMessage(protocol.TypeStatus, protocol.StatusPayload{
		ClientID:        client.id,
		CameraConnected: s.cmd != nil,
		VideoURL:        s.cfg.VideoURL,
		Preview:         s.rtp != nil,
	})

	if client.rtpChan != nil {
		if err := client.startPreview(); err != nil {
			logging.Logf("Failed to start preview for %s: %v", client.id, err)
		}
	}
}

func (c *Client) startPreview() error {
	session, err := webrtc.NewSession(c.server.cfg.WebRTC, func(cand pwebrtc.ICECandidateInit) {
		payload := protocol.ICECandidatePayload{Candidate: cand.Candidate}
		if cand.SDPMid != nil {
			payload.SDPMid = *cand.SDPMid
		}
		if cand.SDPMLineIndex != nil {
			payload.SDPMLineIndex = *cand.SDPMLineIndex
		}
		c.sendMessage(protocol.TypeICECandidate, payload)
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return session.Close()
	}
	c.preview = session
	c.mu.Unlock()

	offer, err := session.CreateOffer()
	if err != nil {
		return err
	}
	c.sendMessage(protocol.TypeOffer, protocol.SDPPayload{SDP: offer})

	go session.Forward(c.rtpChan)
	return nil
}

func (c *Client) session() *webrtc.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preview
}

func encode(msgType string, payload any) ([]byte, error) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType string, payload any) {
	data, err := encode(msgType, payload)
	if err != nil {
		logging.Logf("Failed to create message: %v", err)
		return
	}
	c.enqueue(data)
}

func (c *Client) sendError(code, message string) {
	c.sendMessage(protocol.TypeError, protocol.ErrorPayload{Code: code, Message: message})
}

func (c *Client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		logging.Logf("Client %s send buffer full, dropping message", c.id)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.server.clientsMu.Lock()
		delete(c.server.clients, c)
		c.server.clientsMu.Unlock()
		c.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Logf("WebSocket error: %v", err)
			}
			return
		}
		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(protocol.ErrInvalidMessage, "Failed to parse message")
		return
	}

	switch msg.Type {
	case protocol.TypePing:
		var payload protocol.PingPayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.sendError(protocol.ErrInvalidMessage, "Invalid ping payload")
			return
		}
		c.sendMessage(protocol.TypePong, protocol.PongPayload{
			ClientTimestamp: payload.Timestamp,
			ServerTimestamp: time.Now().UnixMilli(),
		})

	case protocol.TypeAnswer:
		var payload protocol.SDPPayload
		if err := msg.ParsePayload(&payload); err != nil {
			return
		}
		if s := c.session(); s != nil {
			if err := s.SetAnswer(payload.SDP); err != nil {
				logging.Logf("Failed to set answer: %v", err)
			}
		}

	case protocol.TypeICECandidate:
		var payload protocol.ICECandidatePayload
		if err := msg.ParsePayload(&payload); err != nil {
			return
		}
		if s := c.session(); s != nil {
			if err := s.AddICECandidate(payload.Candidate, payload.SDPMid, payload.SDPMLineIndex); err != nil {
				logging.Logf("Failed to add ICE candidate: %v", err)
			}
		}

	case protocol.TypePTZStop:
		c.override("stop", func(cmd Commander) error { return cmd.Stop() })

	case protocol.TypePTZHome:
		c.override("home", func(cmd Commander) error { return cmd.Home() })

	case protocol.TypePTZPreset:
		var payload protocol.PTZPresetPayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.sendError(protocol.ErrInvalidMessage, "Invalid preset payload")
			return
		}
		switch payload.Action {
		case "recall":
			c.override("recall preset", func(cmd Commander) error { return cmd.RecallPreset(payload.PresetNumber) })
		case "save":
			c.override("save preset", func(cmd Commander) error { return cmd.SavePreset(payload.PresetNumber) })
		default:
			c.sendError(protocol.ErrInvalidMessage, "Unknown preset action: "+payload.Action)
		}

	default:
		c.sendError(protocol.ErrUnknownType, "Unknown message type: "+msg.Type)
	}
}

func (c *Client) override(name string, fn func(Commander) error) {
	if c.server.cmd == nil {
		c.sendError(protocol.ErrCameraDisconnected, "No camera attached")
		return
	}
	if err := fn(c.server.cmd); err != nil {
		logging.Logf("Monitor %s failed: %v", name, err)
		c.sendError(protocol.ErrVISCA, err.Error())
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	if c.preview != nil {
		c.preview.Close()
		c.preview = nil
	}
	close(c.send)
}
