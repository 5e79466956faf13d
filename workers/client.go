package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrClientClosed is returned by calls on a closed client.
var ErrClientClosed = errors.New("worker client closed")

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithToken attaches token to every request.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithClientLogger sets the client logger.
func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// Client sends requests to a worker Server over a ZeroMQ DEALER socket and
// matches replies to callers by request ID. It is safe for concurrent use.
type Client struct {
	token  string
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	dealer zmq4.Socket
	sendMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Response
	closed  bool
	wg      sync.WaitGroup
}

// Dial connects a client to the server at address.
func Dial(address string, opts ...ClientOption) (*Client, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		logger:  zap.NewNop(),
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]chan Response),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.dealer = zmq4.NewDealer(ctx, zmq4.WithID(zmq4.SocketIdentity("agridx-"+uuid.NewString())))
	if err := c.dealer.Dial(address); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	c.wg.Add(1)
	go c.readLoop()
	return c, nil
}

// Call sends payload to a worker of kind and waits for the reply or ctx.
// A failed reply is returned with a nil error; use Response.Err.
func (c *Client) Call(ctx context.Context, kind Kind, payload any) (Response, error) {
	req, err := NewRequest(kind, payload)
	if err != nil {
		return Response{}, err
	}
	return c.Do(ctx, req)
}

// Do sends a prepared request.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	if req.Token == "" {
		req.Token = c.token
	}
	data, err := encodeEnvelope(req)
	if err != nil {
		return Response{}, err
	}

	ch := make(chan Response, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Response{}, ErrClientClosed
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()
	defer c.forget(req.ID)

	c.sendMu.Lock()
	err = c.dealer.Send(zmq4.NewMsg(data))
	c.sendMu.Unlock()
	if err != nil {
		return Response{}, fmt.Errorf("failed to send %s request: %w", req.Kind, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return Response{}, ErrClientClosed
		}
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Close disconnects the client. Waiting calls fail with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	err := c.dealer.Close()
	c.wg.Wait()

	c.mu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	return err
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		msg, err := c.dealer.Recv()
		if err != nil {
			if !pauseAfterRecvError(c.ctx, c.logger, "dealer", err) {
				return
			}
			continue
		}
		if len(msg.Frames) == 0 {
			continue
		}
		resp, err := decodeResponse(msg.Frames[len(msg.Frames)-1])
		if err != nil {
			c.logger.Debug("dropping malformed reply", zap.Error(err))
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("dropping unmatched reply", zap.String("id", resp.ID))
			continue
		}
		ch <- resp
	}
}

// CallAs sends req to a worker of kind and decodes the reply into Resp.
func CallAs[Req, Resp any](ctx context.Context, c *Client, kind Kind, req Req) (Resp, error) {
	var out Resp
	resp, err := c.Call(ctx, kind, req)
	if err != nil {
		return out, err
	}
	err = resp.Decode(&out)
	return out, err
}
