package bus

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Server exposes a Hub to popup processes over a websocket.
type Server struct {
	hub      *Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub:    hub,
		logger: logger.With("component", "bus"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// the agent listens on loopback; browsers never connect here
			CheckOrigin: func(r *http.Request) bool { return r.Header.Get("Origin") == "" },
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	s.serveConn(r.Context(), conn)
}

// ListenAndServe serves the bus on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves the bus on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle(DefaultPath, s)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("bus listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type serverConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *serverConn) write(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(f)
}

func (s *Server) serveConn(ctx context.Context, ws *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer ws.Close()

	conn := &serverConn{ws: ws}
	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("bus connection closed", "err", err)
			}
			return
		}
		s.dispatch(ctx, conn, f)
	}
}

func (s *Server) dispatch(ctx context.Context, conn *serverConn, f frame) {
	switch f.Type {
	case frameTabs:
		tabs, err := s.hub.Tabs(ctx)
		out := frame{ID: f.ID, Type: frameListed, Tabs: tabs}
		if err != nil {
			out.Error = err.Error()
		}
		s.reply(conn, out)

	case frameSend:
		if f.Request == nil {
			s.reply(conn, frame{ID: f.ID, Type: frameReply, Code: codeBadFrame, Error: "missing request"})
			return
		}
		s.logger.Debug("relaying request", "tab", f.Tab, "action", f.Request.Action)
		// handlers may block on the page; keep reading other frames meanwhile
		go s.hub.Send(ctx, f.Tab, *f.Request, func(resp Response, err error) {
			out := frame{ID: f.ID, Type: frameReply}
			if err != nil {
				out.Code = errorCode(err)
				out.Error = err.Error()
			} else {
				out.Response = &resp
			}
			s.reply(conn, out)
		})

	default:
		s.reply(conn, frame{ID: f.ID, Type: frameReply, Code: codeBadFrame, Error: "unknown frame type: " + f.Type})
	}
}

func (s *Server) reply(conn *serverConn, f frame) {
	if err := conn.write(f); err != nil {
		s.logger.Debug("failed to write reply", "id", f.ID, "err", err)
	}
}
