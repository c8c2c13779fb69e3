package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/attention-labs/internal/engagement"
	"github.com/ashureev/attention-labs/internal/eventlog"
	"github.com/ashureev/attention-labs/internal/metrics"
)

const defaultSubscriberBuffer = 32

// Message is an engagement event stamped with a stream-wide ID.
type Message struct {
	ID    int64            `json:"id"`
	Event engagement.Event `json:"event"`
}

// Subscriber receives the messages of one session. C is closed when the
// subscriber is removed, either by Unsubscribe, by Prune, or because it
// fell behind.
type Subscriber struct {
	ID          int64
	SessionID   string
	ConnectedAt time.Time
	C           <-chan Message

	ch     chan Message
	lagged bool
}

// Lagged reports whether the subscriber was dropped for falling behind.
// Only meaningful after C is closed.
func (s *Subscriber) Lagged() bool {
	return s.lagged
}

// ObserverLookup resolves the observer that owns a session.
type ObserverLookup func(sessionID string) string

// HubConfig configures a Hub.
type HubConfig struct {
	ReplaySize       int
	SubscriberBuffer int
	EventLog         eventlog.Logger
	Observer         ObserverLookup
	Logger           *slog.Logger
}

// Hub assigns IDs to engagement events, records them for replay and in the
// event log, and delivers them to the session's subscribers.
type Hub struct {
	queue     *ReplayQueue
	eventLog  eventlog.Logger
	observer  ObserverLookup
	logger    *slog.Logger
	subBuffer int

	mu     sync.Mutex
	subs   map[string]map[int64]*Subscriber
	nextID int64
	connID int64
}

// NewHub creates a hub.
func NewHub(cfg HubConfig) *Hub {
	if cfg.EventLog == nil {
		cfg.EventLog = eventlog.Nop{}
	}
	if cfg.Observer == nil {
		cfg.Observer = func(string) string { return "" }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = defaultSubscriberBuffer
	}
	return &Hub{
		queue:     NewReplayQueue(cfg.ReplaySize),
		eventLog:  cfg.EventLog,
		observer:  cfg.Observer,
		logger:    cfg.Logger,
		subBuffer: cfg.SubscriberBuffer,
		subs:      make(map[string]map[int64]*Subscriber),
	}
}

// Run publishes every event read from events until the channel closes or
// ctx is cancelled.
func (h *Hub) Run(ctx context.Context, events <-chan engagement.Event) {
	h.logger.Info("[BROADCAST] Broadcast loop started")
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("[BROADCAST] Broadcast loop shutting down", "reason", ctx.Err())
			return
		case ev, ok := <-events:
			if !ok {
				h.logger.Info("[BROADCAST] Event channel closed, shutting down")
				return
			}
			h.Publish(ev)
		}
	}
}

// Drain publishes the events already buffered in events without waiting
// for more. It returns how many were published.
func (h *Hub) Drain(events <-chan engagement.Event) int {
	n := 0
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return n
			}
			h.Publish(ev)
			n++
		default:
			return n
		}
	}
}

// Publish stamps ev with the next ID and delivers it. Subscribers whose
// buffer is full are disconnected; they recover through replay.
func (h *Hub) Publish(ev engagement.Event) Message {
	h.eventLog.Log(eventlog.Record{
		Time:       ev.Time,
		ObserverID: h.observer(ev.SessionID),
		SessionID:  ev.SessionID,
		Event:      ev,
	})

	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	msg := Message{ID: h.nextID, Event: ev}
	h.queue.Enqueue(msg)

	for id, sub := range h.subs[ev.SessionID] {
		select {
		case sub.ch <- msg:
		default:
			sub.lagged = true
			h.removeLocked(ev.SessionID, id)
			metrics.StreamLagged.Inc()
			h.logger.Warn("[BROADCAST] Subscriber lagging, disconnecting",
				"session_id", ev.SessionID,
				"conn_id", id,
				"event_id", msg.ID,
			)
		}
	}
	return msg
}

// Subscribe registers a subscriber for sessionID. When lastEventID is
// positive the buffered messages after it are returned for replay; they
// are not also delivered on C.
func (h *Hub) Subscribe(sessionID string, lastEventID int64) (*Subscriber, []Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var missed []Message
	if lastEventID > 0 {
		missed = h.queue.After(sessionID, lastEventID)
	}

	h.connID++
	ch := make(chan Message, h.subBuffer)
	sub := &Subscriber{
		ID:          h.connID,
		SessionID:   sessionID,
		ConnectedAt: time.Now(),
		C:           ch,
		ch:          ch,
	}
	if _, ok := h.subs[sessionID]; !ok {
		h.subs[sessionID] = make(map[int64]*Subscriber)
	}
	h.subs[sessionID][sub.ID] = sub
	metrics.StreamSubscribers.Inc()

	h.logger.Info("[BROADCAST] Subscriber connected",
		"session_id", sessionID,
		"conn_id", sub.ID,
		"last_event_id", lastEventID,
		"replayed", len(missed),
	)
	return sub, missed
}

// Unsubscribe removes sub. It is safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub.SessionID, sub.ID)
}

func (h *Hub) removeLocked(sessionID string, connID int64) {
	conns, ok := h.subs[sessionID]
	if !ok {
		return
	}
	sub, ok := conns[connID]
	if !ok {
		return
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(h.subs, sessionID)
	}
	close(sub.ch)
	metrics.StreamSubscribers.Dec()
}

// LastID returns the most recently assigned message ID.
func (h *Hub) LastID() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nextID
}

// Subscribers returns the number of live subscribers for sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}

// Prune disconnects the session's subscribers, drops its replay backlog
// and closes its event log file.
func (h *Hub) Prune(sessionID string) {
	h.mu.Lock()
	for id := range h.subs[sessionID] {
		h.removeLocked(sessionID, id)
	}
	h.mu.Unlock()

	h.queue.Prune(sessionID)
	h.eventLog.CloseSession(sessionID)
	h.logger.Info("[BROADCAST] Session pruned", "session_id", sessionID)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sessionID, conns := range h.subs {
		for id := range conns {
			h.removeLocked(sessionID, id)
		}
	}
}
