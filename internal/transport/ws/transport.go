// Package ws carries ConfigProtocol frames over WebSocket (spec §4.4:
// "framed in WebSocket when tunnelled"), grounded on the teacher's
// gorilla/websocket transport manager, simplified from the teacher's
// multi-lane VirtualLink model to the single logical connection a
// ConfigProtocol client/server pair actually needs.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/openDAQ/openDAQ-sub000/internal/configprotocol/messages"
	"github.com/openDAQ/openDAQ-sub000/pkg/logger"
)

// Config holds transport tuning parameters, defaulted the way the
// teacher's DefaultTransportConfig does.
type Config struct {
	ListenAddr        string
	Path              string
	ReadBufferSize    int
	WriteBufferSize   int
	MaxMessageSize    int64
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	PongWait          time.Duration
	PingPeriod        time.Duration
	MaxConnections    int
	EnableCompression bool
}

// DefaultConfig returns the default transport tuning.
func DefaultConfig() Config {
	return Config{
		ListenAddr:        ":7417",
		Path:               "/configprotocol",
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		MaxMessageSize:    8 * 1024 * 1024,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		PongWait:          60 * time.Second,
		PingPeriod:        54 * time.Second,
		MaxConnections:    1000,
		EnableCompression: true,
	}
}

func fillDefaults(c Config) Config {
	d := DefaultConfig()
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.Path == "" {
		c.Path = d.Path
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = d.WriteBufferSize
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PongWait == 0 {
		c.PongWait = d.PongWait
	}
	if c.PingPeriod == 0 {
		c.PingPeriod = d.PingPeriod
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = d.MaxConnections
	}
	return c
}

// Conn is one ConfigProtocol connection: a WebSocket socket plus the
// frame channels application code reads/writes.
type Conn struct {
	ws     *websocket.Conn
	cfg    Config
	log    *logger.Logger
	Send   chan *messages.Frame
	Recv   chan *messages.Frame
	ctx    context.Context
	cancel context.CancelFunc
	sentCount uint64
	mu     sync.Mutex
}

func newConn(ws *websocket.Conn, cfg Config, log *logger.Logger) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws:     ws,
		cfg:    cfg,
		log:    log,
		Send:   make(chan *messages.Frame, 256),
		Recv:   make(chan *messages.Frame, 256),
		ctx:    ctx,
		cancel: cancel,
	}
	ws.SetReadLimit(cfg.MaxMessageSize)
	ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
		return nil
	})
	go c.sendLoop()
	go c.recvLoop()
	go c.pingLoop()
	return c
}

func (c *Conn) sendLoop() {
	for {
		select {
		case frame := <-c.Send:
			c.mu.Lock()
			err := c.ws.WriteJSON(frame)
			c.mu.Unlock()
			if err != nil {
				c.log.Errorf("write frame: %v", err)
				c.cancel()
				return
			}
			atomic.AddUint64(&c.sentCount, 1)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Conn) recvLoop() {
	defer close(c.Recv)
	for {
		var frame messages.Frame
		if err := c.ws.ReadJSON(&frame); err != nil {
			select {
			case <-c.ctx.Done():
			default:
				c.log.Errorf("read frame: %v", err)
			}
			c.cancel()
			return
		}
		select {
		case c.Recv <- &frame:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.cfg.WriteTimeout))
			c.mu.Unlock()
			if err != nil {
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// SentCount reports how many frames have been written so far, used by
// §8 S7 to assert lock() raises ServerVersionTooLow "without any
// network traffic".
func (c *Conn) SentCount() uint64 { return atomic.LoadUint64(&c.sentCount) }

// Close shuts down the connection. Taking the write mutex serializes
// the close with any in-flight frame write.
func (c *Conn) Close() error {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.Close()
}

// CloseAfterDrain waits up to timeout for the outgoing queue to flush
// before closing, so a final goodbye frame (e.g. a disconnect reason)
// actually reaches the peer.
func (c *Conn) CloseAfterDrain(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for len(c.Send) > 0 && time.Now().Before(deadline) {
		select {
		case <-c.ctx.Done():
			return c.Close()
		case <-time.After(5 * time.Millisecond):
		}
	}
	return c.Close()
}

// Done returns a channel closed when the connection is torn down.
func (c *Conn) Done() <-chan struct{} { return c.ctx.Done() }

// Server accepts ConfigProtocol connections over WebSocket.
type Server struct {
	cfg      Config
	log      *logger.Logger
	upgrader websocket.Upgrader
	httpSrv  *http.Server
	onConn   func(*Conn)
	mu       sync.Mutex
	conns    map[*Conn]struct{}
}

// NewServer creates a server that invokes onConn for every accepted
// connection.
func NewServer(cfg Config, log *logger.Logger, onConn func(*Conn)) *Server {
	cfg = fillDefaults(cfg)
	return &Server{
		cfg: cfg,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    cfg.ReadBufferSize,
			WriteBufferSize:   cfg.WriteBufferSize,
			EnableCompression: cfg.EnableCompression,
			CheckOrigin:       func(r *http.Request) bool { return true },
		},
		onConn: onConn,
		conns:  make(map[*Conn]struct{}),
	}
}

// Start begins listening.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handle)
	s.httpSrv = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  s.cfg.HandshakeTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("transport server stopped: %v", err)
		}
	}()
	s.log.Infof("configprotocol transport listening on %s%s", s.cfg.ListenAddr, s.cfg.Path)
	return nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if len(s.conns) >= s.cfg.MaxConnections {
		s.mu.Unlock()
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	s.mu.Unlock()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("upgrade: %v", err)
		return
	}
	c := newConn(ws, s.cfg, s.log)
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	go func() {
		<-c.Done()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}()
	if s.onConn != nil {
		s.onConn(c)
	}
}

// Stop closes every open connection and shuts down the listener.
func (s *Server) Stop() error {
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.conns = make(map[*Conn]struct{})
	s.mu.Unlock()

	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// Dial connects to a ConfigProtocol server.
func Dial(addr, path string, cfg Config, log *logger.Logger) (*Conn, error) {
	cfg = fillDefaults(cfg)
	url := fmt.Sprintf("ws://%s%s", addr, path)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return newConn(ws, cfg, log), nil
}
