package workers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"
)

// Server errors
var (
	ErrServerRunning = errors.New("server already running")
	ErrReplay        = errors.New("replayed or expired request")
)

const (
	defaultMaxInFlight  = 16
	defaultReplayWindow = 60 * time.Second
)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server logger.
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithAuthenticator requires requests to pass a.
func WithAuthenticator(a *Authenticator) ServerOption {
	return func(s *Server) { s.auth = a }
}

// WithMaxInFlight bounds concurrently handled requests. Receiving pauses
// while the bound is reached.
func WithMaxInFlight(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxInFlight = n
		}
	}
}

// WithReplayWindow sets how long request IDs are remembered and how old a
// request may be.
func WithReplayWindow(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.replayWindow = d
		}
	}
}

// Server serves worker requests over a ZeroMQ ROUTER socket. Each reply is
// routed back to the identity that sent the request.
type Server struct {
	address      string
	registry     *Registry
	auth         *Authenticator
	logger       *zap.Logger
	maxInFlight  int
	replayWindow time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	router zmq4.Socket
	sendMu sync.Mutex
	sem    chan struct{}

	seen   map[string]time.Time
	seenMu sync.Mutex

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// NewServer creates a server bound to address (e.g. "tcp://127.0.0.1:5560").
func NewServer(address string, registry *Registry, opts ...ServerOption) *Server {
	s := &Server{
		address:      address,
		registry:     registry,
		logger:       zap.NewNop(),
		maxInFlight:  defaultMaxInFlight,
		replayWindow: defaultReplayWindow,
		seen:         make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the socket and begins serving.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrServerRunning
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.router = zmq4.NewRouter(s.ctx, zmq4.WithID(zmq4.SocketIdentity("agridx-workers")))
	if err := s.router.Listen(s.address); err != nil {
		s.cancel()
		return fmt.Errorf("failed to bind router: %w", err)
	}
	s.sem = make(chan struct{}, s.maxInFlight)
	s.running = true

	s.wg.Add(2)
	go s.receiveLoop()
	go s.replayCleaner()

	s.logger.Info("worker server listening",
		zap.String("address", s.router.Addr().String()),
		zap.Int("max_in_flight", s.maxInFlight),
		zap.Bool("auth", s.auth.Enabled()),
	)
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.router == nil {
		return nil
	}
	return s.router.Addr()
}

// Stop closes the socket and waits for in-flight requests.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	if err := s.router.Close(); err != nil {
		s.logger.Debug("router close", zap.Error(err))
	}
	s.wg.Wait()
	s.logger.Info("worker server stopped")
}

// Serve starts the server and blocks until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Server) receiveLoop() {
	defer s.wg.Done()

	for {
		msg, err := s.router.Recv()
		if err != nil {
			if !pauseAfterRecvError(s.ctx, s.logger, "router", err) {
				return
			}
			continue
		}
		if len(msg.Frames) < 2 {
			continue
		}
		identity := msg.Frames[0]
		body := msg.Frames[len(msg.Frames)-1]

		select {
		case s.sem <- struct{}{}:
		case <-s.ctx.Done():
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			s.reply(identity, s.handle(body))
		}()
	}
}

func (s *Server) handle(body []byte) Response {
	req, err := decodeRequest(body)
	if err != nil {
		return failure(req, err)
	}
	if err := s.auth.Validate(req.Token); err != nil {
		return failure(req, err)
	}
	if !s.accept(req) {
		return failure(req, ErrReplay)
	}
	return s.registry.Dispatch(s.ctx, req)
}

func (s *Server) reply(identity []byte, resp Response) {
	data, err := encodeEnvelope(resp)
	if err != nil {
		data, _ = encodeEnvelope(failure(Request{ID: resp.ID, Kind: resp.Kind}, err))
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.router.Send(zmq4.NewMsgFrom(identity, data)); err != nil {
		s.logger.Warn("failed to send worker reply", zap.String("id", resp.ID), zap.Error(err))
	}
}

// accept rejects request IDs already seen and requests older than the
// replay window. decodeRequest guarantees SentAt is set.
func (s *Server) accept(req Request) bool {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()

	if _, dup := s.seen[req.ID]; dup {
		return false
	}
	if time.Since(req.SentAt) > s.replayWindow {
		return false
	}
	s.seen[req.ID] = time.Now()
	return true
}

func (s *Server) replayCleaner() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.replayWindow / 2)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.replayWindow)
			s.seenMu.Lock()
			for id, ts := range s.seen {
				if ts.Before(cutoff) {
					delete(s.seen, id)
				}
			}
			s.seenMu.Unlock()
		}
	}
}
