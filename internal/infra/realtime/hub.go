package realtime

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/sanskarpan/Latexy/internal/infra/metrics"
)

var (
	ErrConnectionExists  = errors.New("connection id already in use")
	ErrUnknownConnection = errors.New("unknown connection")
)

// Conn is the write side of a client connection.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Message is the envelope of every frame in both directions.
type Message struct {
	Type  string `json:"type"`
	JobID string `json:"job_id,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

const (
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeJobUpdate    = "job_update"
	TypeSubscribed   = "subscription_confirmed"
	TypeUnsubscribed = "unsubscription_confirmed"
	TypeError        = "error"
	TypeAnnouncement = "announcement"
)

type client struct {
	mu   sync.Mutex // one writer at a time
	conn Conn
}

func (c *client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Hub keeps the connection to job subscription index in both directions.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*client
	byJob map[string]map[string]struct{}
	byCon map[string]map[string]struct{}
	log   *zerolog.Logger
}

type HubStats struct {
	Connections   int `json:"websocket_connections"`
	Subscriptions int `json:"job_subscriptions"`
}

func NewHub(logger *zerolog.Logger) *Hub {
	compLog := logger.With().Str("component", "RealtimeHub").Logger()
	return &Hub{
		conns: make(map[string]*client),
		byJob: make(map[string]map[string]struct{}),
		byCon: make(map[string]map[string]struct{}),
		log:   &compLog,
	}
}

// Connect registers conn under a fresh id.
func (h *Hub) Connect(conn Conn) string {
	id, _ := h.connectAny(conn)
	return id
}

func (h *Hub) connectAny(conn Conn) (string, *client) {
	for {
		id := ulid.Make().String()
		if c, err := h.attach(id, conn); err == nil {
			return id, c
		}
	}
}

// ConnectWithID registers conn under a caller-chosen id.
func (h *Hub) ConnectWithID(id string, conn Conn) error {
	_, err := h.attach(id, conn)
	return err
}

func (h *Hub) attach(id string, conn Conn) (*client, error) {
	h.mu.Lock()
	if _, taken := h.conns[id]; taken {
		h.mu.Unlock()
		return nil, ErrConnectionExists
	}
	c := &client{conn: conn}
	h.conns[id] = c
	n := len(h.conns)
	h.mu.Unlock()

	metrics.SetWSConnections(n)
	h.log.Info().Str("connection_id", id).Msg("realtime connection established")
	return c, nil
}

// Disconnect drops the connection and every subscription it held.
// It reports whether the id was known.
func (h *Hub) Disconnect(id string) bool {
	return h.detach(id, nil)
}

// detach removes id. A non-nil owner limits removal to that exact client,
// so a stale session cannot drop a newer connection that reused its id.
func (h *Hub) detach(id string, owner *client) bool {
	h.mu.Lock()
	c, ok := h.conns[id]
	if !ok || (owner != nil && c != owner) {
		h.mu.Unlock()
		return false
	}
	delete(h.conns, id)
	for jobID := range h.byCon[id] {
		h.dropSub(jobID, id)
	}
	delete(h.byCon, id)
	n := len(h.conns)
	h.mu.Unlock()

	metrics.SetWSConnections(n)
	h.log.Info().Str("connection_id", id).Msg("realtime connection closed")
	return true
}

// dropSub removes one job side entry; caller holds mu.
func (h *Hub) dropSub(jobID, id string) {
	subs := h.byJob[jobID]
	delete(subs, id)
	if len(subs) == 0 {
		delete(h.byJob, jobID)
	}
}

// Subscribe is idempotent. The job does not have to exist yet.
func (h *Hub) Subscribe(id, jobID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[id]; !ok {
		return false
	}
	if h.byJob[jobID] == nil {
		h.byJob[jobID] = make(map[string]struct{})
	}
	h.byJob[jobID][id] = struct{}{}
	if h.byCon[id] == nil {
		h.byCon[id] = make(map[string]struct{})
	}
	h.byCon[id][jobID] = struct{}{}
	return true
}

func (h *Hub) Unsubscribe(id, jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropSub(jobID, id)
	if jobs := h.byCon[id]; jobs != nil {
		delete(jobs, jobID)
		if len(jobs) == 0 {
			delete(h.byCon, id)
		}
	}
}

// Subscribers lists the connection ids subscribed to a job, sorted.
func (h *Hub) Subscribers(jobID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.byJob[jobID]))
	for id := range h.byJob[jobID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type target struct {
	id string
	c  *client
}

// PushUpdate sends a job_update frame to the job's subscribers and returns
// how many received it. Connections that fail are disconnected.
func (h *Hub) PushUpdate(ctx context.Context, jobID string, data any) int {
	h.mu.RLock()
	targets := make([]target, 0, len(h.byJob[jobID]))
	for id := range h.byJob[jobID] {
		if c, ok := h.conns[id]; ok {
			targets = append(targets, target{id, c})
		}
	}
	h.mu.RUnlock()

	return h.deliver(ctx, targets, Message{Type: TypeJobUpdate, JobID: jobID, Data: data})
}

// Broadcast sends msg to every connection regardless of subscriptions.
func (h *Hub) Broadcast(ctx context.Context, msg any) int {
	h.mu.RLock()
	targets := make([]target, 0, len(h.conns))
	for id, c := range h.conns {
		targets = append(targets, target{id, c})
	}
	h.mu.RUnlock()

	return h.deliver(ctx, targets, msg)
}

// Send writes one frame to one connection.
func (h *Hub) Send(id string, msg any) error {
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownConnection
	}
	return c.send(msg)
}

func (h *Hub) deliver(ctx context.Context, targets []target, msg any) int {
	delivered := 0
	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}
		if err := t.c.send(msg); err != nil {
			metrics.IncWSPush("dropped")
			h.log.Warn().Err(err).Str("connection_id", t.id).Msg("realtime send failed, dropping connection")
			if h.detach(t.id, t.c) {
				_ = t.c.conn.Close()
			}
			continue
		}
		metrics.IncWSPush("delivered")
		delivered++
	}
	return delivered
}

func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HubStats{Connections: len(h.conns), Subscriptions: len(h.byJob)}
}

// Close disconnects everyone, used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*client)
	h.byJob = make(map[string]map[string]struct{})
	h.byCon = make(map[string]map[string]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.conn.Close()
	}
	metrics.SetWSConnections(0)
}
