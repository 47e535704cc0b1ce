// Package bus relays one-shot requests from the popup to the page agent that
// owns a tab, with exactly one asynchronous reply per request.
package bus

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
)

// ActionScrollToMessage asks the page to locate, scroll to and highlight a message.
const ActionScrollToMessage = "scrollToMessage"

var (
	// ErrNoReceiver reports that no handler is registered for the target tab.
	ErrNoReceiver = errors.New("could not establish connection: receiving end does not exist")

	// ErrPortClosed reports that the handler declined to answer.
	ErrPortClosed = errors.New("message port closed before a response was received")
)

// Request is the payload sent to a page: {"action": "scrollToMessage", "message": "..."}.
type Request struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

// Response is the single reply to a Request.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// TabInfo describes a page context a handler is registered for.
type TabInfo struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

// Sender describes who sent a request.
type Sender struct {
	ID string `json:"id"`
}

// ReplyFunc delivers the response. Only the first call has an effect.
type ReplyFunc func(Response)

// Handler processes a request for a tab. Returning true keeps the channel
// open until reply is called; returning false without replying closes it.
type Handler func(ctx context.Context, req Request, sender Sender, reply ReplyFunc) bool

// Callback receives the outcome of Send: a response or a channel error.
type Callback func(Response, error)

type registration struct {
	info    TabInfo
	handler Handler
}

// Hub routes requests to handlers registered per tab within one process.
type Hub struct {
	mu   sync.RWMutex
	tabs map[string]*registration
}

func NewHub() *Hub {
	return &Hub{tabs: make(map[string]*registration)}
}

// Register installs handler for tab.ID, replacing any previous one. The
// returned function removes it again.
func (h *Hub) Register(tab TabInfo, handler Handler) func() {
	reg := &registration{info: tab, handler: handler}
	h.mu.Lock()
	h.tabs[tab.ID] = reg
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.tabs[tab.ID] == reg {
			delete(h.tabs, tab.ID)
		}
	}
}

// Update refreshes the metadata of a registered tab.
func (h *Hub) Update(tab TabInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if reg, ok := h.tabs[tab.ID]; ok {
		reg.info = tab
	}
}

// Tabs lists the registered tabs ordered by ID.
func (h *Hub) Tabs(ctx context.Context) ([]TabInfo, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	tabs := make([]TabInfo, 0, len(h.tabs))
	for _, reg := range h.tabs {
		tabs = append(tabs, reg.info)
	}
	slices.SortFunc(tabs, func(a, b TabInfo) int { return cmp.Compare(a.ID, b.ID) })
	return tabs, nil
}

// Send delivers req to the handler of tabID. cb runs exactly once when the
// handler replies or the channel fails; a missing receiver is reported
// before Send returns. A handler that keeps the channel open and never
// replies leaves cb uncalled.
func (h *Hub) Send(ctx context.Context, tabID string, req Request, cb Callback) {
	h.mu.RLock()
	reg, ok := h.tabs[tabID]
	h.mu.RUnlock()
	if !ok {
		cb(Response{}, ErrNoReceiver)
		return
	}

	var once sync.Once
	reply := func(resp Response) {
		once.Do(func() { cb(resp, nil) })
	}

	if keepOpen := reg.handler(ctx, req, Sender{ID: "popup"}, reply); !keepOpen {
		// no-op if the handler already replied synchronously
		once.Do(func() { cb(Response{}, ErrPortClosed) })
	}
}

// Call is the blocking form of Send. It returns ctx.Err() if ctx ends first.
func (h *Hub) Call(ctx context.Context, tabID string, req Request) (Response, error) {
	return Call(ctx, h, tabID, req)
}

// Messenger is the popup-facing surface shared by Hub and Client.
type Messenger interface {
	Tabs(ctx context.Context) ([]TabInfo, error)
	Send(ctx context.Context, tabID string, req Request, cb Callback)
}

// Call sends req through m and waits for the reply.
func Call(ctx context.Context, m Messenger, tabID string, req Request) (Response, error) {
	type outcome struct {
		resp Response
		err  error
	}
	ch := make(chan outcome, 1)
	m.Send(ctx, tabID, req, func(resp Response, err error) {
		ch <- outcome{resp, err}
	})

	select {
	case out := <-ch:
		return out.resp, out.err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}
