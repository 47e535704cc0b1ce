package bus

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is the popup side of the bus. Replies are matched to requests by a
// per-request ID.
type Client struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]func(frame, error)
	closed  bool
	done    chan struct{}
}

// URLFor builds the websocket URL for an agent listening on addr (host:port).
func URLFor(addr string) string {
	u := url.URL{Scheme: "ws", Host: addr, Path: DefaultPath}
	return u.String()
}

// Dial connects to the page agent at rawURL (ws://host:port/bus).
func Dial(ctx context.Context, rawURL string) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to page agent at %s: %w", rawURL, err)
	}

	c := &Client{
		ws:      ws,
		pending: make(map[string]func(frame, error)),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Tabs lists the tabs the agent serves.
func (c *Client) Tabs(ctx context.Context) ([]TabInfo, error) {
	type outcome struct {
		tabs []TabInfo
		err  error
	}
	ch := make(chan outcome, 1)

	id := uuid.NewString()
	c.register(id, func(f frame, err error) {
		if err == nil {
			err = errorFromFrame(f)
		}
		ch <- outcome{f.Tabs, err}
	})
	if err := c.write(frame{ID: id, Type: frameTabs}); err != nil {
		c.unregister(id)
		return nil, err
	}

	select {
	case out := <-ch:
		return out.tabs, out.err
	case <-ctx.Done():
		c.unregister(id)
		return nil, ctx.Err()
	}
}

// Send forwards req to the handler of tabID. cb runs at most once. Once ctx
// ends the request is forgotten and a late reply is dropped.
func (c *Client) Send(ctx context.Context, tabID string, req Request, cb Callback) {
	id := uuid.NewString()
	stop := context.AfterFunc(ctx, func() { c.unregister(id) })
	c.register(id, func(f frame, err error) {
		stop()
		if err == nil {
			err = errorFromFrame(f)
		}
		if err != nil {
			cb(Response{}, err)
			return
		}
		if f.Response == nil {
			cb(Response{}, fmt.Errorf("empty reply from page agent"))
			return
		}
		cb(*f.Response, nil)
	})

	if ctx.Err() != nil {
		c.unregister(id)
		return
	}
	if err := c.write(frame{ID: id, Type: frameSend, Tab: tabID, Request: &req}); err != nil {
		if fn := c.unregister(id); fn != nil {
			fn(frame{}, err)
		}
	}
}

// Close closes the connection; pending requests fail with ErrConnClosed.
func (c *Client) Close() error {
	c.writeMu.Lock()
	c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := c.ws.Close()
	<-c.done
	return err
}

func (c *Client) register(id string, fn func(frame, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		go fn(frame{}, ErrConnClosed)
		return
	}
	c.pending[id] = fn
}

func (c *Client) unregister(id string) func(frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn := c.pending[id]
	delete(c.pending, id)
	return fn
}

func (c *Client) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) write(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(f); err != nil {
		return fmt.Errorf("%w: %v", ErrConnClosed, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		var f frame
		if err := c.ws.ReadJSON(&f); err != nil {
			c.failPending()
			return
		}
		if fn := c.unregister(f.ID); fn != nil {
			fn(f, nil)
		}
	}
}

func (c *Client) failPending() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]func(frame, error))
	c.closed = true
	c.mu.Unlock()

	for _, fn := range pending {
		fn(frame{}, ErrConnClosed)
	}
}
