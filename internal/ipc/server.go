package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"imeswitchd/internal/config"
)

// Handler processes validated request envelopes. A nil response means no
// reply is sent; fire-and-forget event messages from plugins use that.
type Handler interface {
	Handle(ctx context.Context, env *Envelope) (*Envelope, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, env *Envelope) (*Envelope, error)

func (f HandlerFunc) Handle(ctx context.Context, env *Envelope) (*Envelope, error) {
	return f(ctx, env)
}

const writeTimeout = 5 * time.Second

// Server accepts plugin and control connections on a local socket.
type Server struct {
	mu sync.Mutex

	cfg     config.IPCConfig
	handler Handler
	log     *slog.Logger

	listener net.Listener
	clients  map[uint64]*client
	nextID   uint64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

type client struct {
	id   uint64
	conn net.Conn

	writeMu    sync.Mutex
	subscribed bool
}

// NewServer creates a server over the given handler.
func NewServer(cfg config.IPCConfig, handler Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		handler: handler,
		log:     log,
		clients: make(map[uint64]*client),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins listening on the configured socket.
func (s *Server) Start() error {
	listener, err := listen(s.cfg.SocketPath)
	if err != nil {
		return err
	}
	s.listener = listener
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	s.log.Info("ipc server listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the listener address. Valid after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes the listener and all connections.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn("ipc shutdown timed out waiting for connections")
	}

	cleanupSocket(s.cfg.SocketPath)
	return nil
}

// ClientCount returns the number of open connections.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Publish sends an event envelope to every subscribed client.
func (s *Server) Publish(env *Envelope) {
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		if c.subscribed {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		if err := s.writeEnvelope(c, env); err != nil {
			s.log.Debug("drop event for slow subscriber", "client", c.id, "error", err)
		}
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				if errors.Is(err, net.ErrClosed) {
					return
				}
				continue
			}
		}

		s.mu.Lock()
		if s.cfg.MaxConnections > 0 && len(s.clients) >= s.cfg.MaxConnections {
			s.mu.Unlock()
			s.log.Warn("connection limit reached, rejecting client")
			conn.Close()
			continue
		}
		s.nextID++
		c := &client{id: s.nextID, conn: conn}
		s.clients[c.id] = c
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(c)
	}
}

func (s *Server) handleConnection(c *client) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		c.conn.Close()
	}()

	maxBytes := s.cfg.MaxMessageBytes
	if maxBytes <= 0 {
		maxBytes = 1024 * 1024
	}

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 64*1024), maxBytes)

	for scanner.Scan() {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if err := ValidateEnvelope(line); err != nil {
			s.log.Debug("rejected envelope", "client", c.id, "error", err)
			s.writeEnvelope(c, NewErrorEnvelope(0, ErrCodeInvalidRequest, err.Error()))
			continue
		}

		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			s.writeEnvelope(c, NewErrorEnvelope(0, ErrCodeInvalidRequest, err.Error()))
			continue
		}

		resp := s.dispatch(c, &env)
		if resp != nil {
			if err := s.writeEnvelope(c, resp); err != nil {
				return
			}
		}
	}
}

// dispatch routes one envelope. Subscription and ping are connection-level
// concerns handled here; everything else goes to the handler.
func (s *Server) dispatch(c *client, env *Envelope) *Envelope {
	switch env.Type {
	case TypePing:
		return &Envelope{Type: TypePong, Seq: env.Seq}

	case TypeSubscribe:
		s.mu.Lock()
		c.subscribed = true
		s.mu.Unlock()
		return &Envelope{Type: TypeOK, Seq: env.Seq}

	default:
		resp, err := s.handler.Handle(s.ctx, env)
		if err != nil {
			return NewErrorEnvelope(env.Seq, ErrCodeInternal, err.Error())
		}
		return resp
	}
}

func (s *Server) writeEnvelope(c *client, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err = c.conn.Write(data)
	return err
}
