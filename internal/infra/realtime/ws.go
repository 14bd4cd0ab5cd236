package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// wsConn adds write deadlines to a gorilla connection.
type wsConn struct {
	ws *websocket.Conn
}

func (c wsConn) WriteJSON(v any) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c wsConn) Close() error { return c.ws.Close() }

// NewUpgrader accepts origins from the allow list; an empty list or "*" accepts all.
func NewUpgrader(allowed []string) *websocket.Upgrader {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(set) == 0 || set["*"] || origin == "" || set[origin]
		},
	}
}

// Serve upgrades the request and runs the client protocol until the peer
// goes away or ctx ends. id may be empty to let the hub pick one.
func (h *Hub) Serve(ctx context.Context, up *websocket.Upgrader, w http.ResponseWriter, r *http.Request, id string) error {
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	conn := wsConn{ws: ws}
	var self *client
	if id == "" {
		id, self = h.connectAny(conn)
	} else if self, err = h.attach(id, conn); err != nil {
		_ = conn.WriteJSON(Message{Type: TypeError, Error: err.Error()})
		_ = ws.Close()
		return err
	}
	defer func() {
		h.detach(id, self)
		_ = ws.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go keepAlive(ctx, ws, done)

	for {
		var in Message
		if err := ws.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("connection_id", id).Msg("realtime read ended")
			}
			return nil
		}
		if err := h.handle(id, in); err != nil {
			return nil
		}
	}
}

func (h *Hub) handle(id string, in Message) error {
	switch in.Type {
	case TypeSubscribe:
		if in.JobID == "" {
			return h.Send(id, Message{Type: TypeError, Error: "job_id is required"})
		}
		h.Subscribe(id, in.JobID)
		return h.Send(id, Message{Type: TypeSubscribed, JobID: in.JobID})
	case TypeUnsubscribe:
		if in.JobID == "" {
			return h.Send(id, Message{Type: TypeError, Error: "job_id is required"})
		}
		h.Unsubscribe(id, in.JobID)
		return h.Send(id, Message{Type: TypeUnsubscribed, JobID: in.JobID})
	case TypePing:
		return h.Send(id, Message{Type: TypePong})
	}
	return h.Send(id, Message{Type: TypeError, Error: "unknown message type"})
}

// keepAlive pings the peer; WriteControl may run concurrently with WriteJSON.
func keepAlive(ctx context.Context, ws *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = ws.Close()
			return
		case <-t.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = ws.Close()
				return
			}
		}
	}
}
