package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scrollHello = Request{Action: ActionScrollToMessage, Message: "Hello"}

func TestHub_SendNoReceiver(t *testing.T) {
	hub := NewHub()

	var got error
	called := 0
	hub.Send(context.Background(), "missing", scrollHello, func(resp Response, err error) {
		called++
		got = err
	})

	assert.Equal(t, 1, called, "missing receiver is reported synchronously")
	assert.ErrorIs(t, got, ErrNoReceiver)
}

func TestHub_SynchronousReply(t *testing.T) {
	hub := NewHub()
	hub.Register(TabInfo{ID: "1"}, func(ctx context.Context, req Request, sender Sender, reply ReplyFunc) bool {
		reply(Response{Success: req.Message == "Hello"})
		return true
	})

	resp, err := hub.Call(context.Background(), "1", scrollHello)
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestHub_DeferredReplyFiresOnce(t *testing.T) {
	hub := NewHub()
	release := make(chan struct{})
	hub.Register(TabInfo{ID: "1"}, func(ctx context.Context, req Request, sender Sender, reply ReplyFunc) bool {
		go func() {
			<-release
			reply(Response{Success: true})
			reply(Response{Success: false, Error: "second reply"})
		}()
		return true
	})

	var calls atomic.Int32
	results := make(chan Response, 2)
	hub.Send(context.Background(), "1", scrollHello, func(resp Response, err error) {
		calls.Add(1)
		results <- resp
	})
	assert.Equal(t, int32(0), calls.Load(), "reply is deferred")

	close(release)
	select {
	case resp := <-results:
		assert.True(t, resp.Success)
	case <-time.After(time.Second):
		t.Fatal("no reply")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHub_HandlerDeclines(t *testing.T) {
	hub := NewHub()
	hub.Register(TabInfo{ID: "1"}, func(ctx context.Context, req Request, sender Sender, reply ReplyFunc) bool {
		return false
	})

	_, err := hub.Call(context.Background(), "1", Request{Action: "other"})
	assert.ErrorIs(t, err, ErrPortClosed)
}

func TestHub_SyncReplyThenFalseIsNotAnError(t *testing.T) {
	hub := NewHub()
	hub.Register(TabInfo{ID: "1"}, func(ctx context.Context, req Request, sender Sender, reply ReplyFunc) bool {
		reply(Response{Success: true})
		return false
	})

	resp, err := hub.Call(context.Background(), "1", scrollHello)
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestHub_CallNeverAnswered(t *testing.T) {
	hub := NewHub()
	hub.Register(TabInfo{ID: "1"}, func(ctx context.Context, req Request, sender Sender, reply ReplyFunc) bool {
		return true
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := hub.Call(ctx, "1", scrollHello)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHub_RegisterReplaceAndUnregister(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	unregisterOld := hub.Register(TabInfo{ID: "1", URL: "https://a.example"}, nil)
	unregisterNew := hub.Register(TabInfo{ID: "1", URL: "https://b.example"}, nil)
	hub.Register(TabInfo{ID: "0", URL: "https://c.example"}, nil)

	tabs, err := hub.Tabs(ctx)
	require.NoError(t, err)
	require.Len(t, tabs, 2)
	assert.Equal(t, "0", tabs[0].ID)
	assert.Equal(t, "https://b.example", tabs[1].URL)

	// stale unregister must not remove the replacement
	unregisterOld()
	tabs, _ = hub.Tabs(ctx)
	assert.Len(t, tabs, 2)

	hub.Update(TabInfo{ID: "1", URL: "https://b.example/next", Active: true})
	tabs, _ = hub.Tabs(ctx)
	assert.Equal(t, "https://b.example/next", tabs[1].URL)
	assert.True(t, tabs[1].Active)

	unregisterNew()
	tabs, _ = hub.Tabs(ctx)
	assert.Len(t, tabs, 1)
}
