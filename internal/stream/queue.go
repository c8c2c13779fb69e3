// Package stream fans engagement events out to live subscribers and keeps
// a bounded per-session backlog for reconnect replay.
package stream

import (
	"container/list"
	"sync"
)

const defaultReplaySize = 100

// ReplayQueue buffers recent messages, sharded per session. Each session
// gets its own bounded list so a busy session cannot evict another
// session's backlog.
type ReplayQueue struct {
	mu      sync.RWMutex
	queues  map[string]*list.List
	maxSize int
}

// NewReplayQueue creates a queue holding up to maxSize messages per session.
// A zero maxSize disables buffering.
func NewReplayQueue(maxSize int) *ReplayQueue {
	if maxSize < 0 {
		maxSize = defaultReplaySize
	}
	return &ReplayQueue{
		queues:  make(map[string]*list.List),
		maxSize: maxSize,
	}
}

// Enqueue appends msg to its session's backlog, evicting the oldest entries
// past the bound.
func (q *ReplayQueue) Enqueue(msg Message) {
	if q.maxSize == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	l, ok := q.queues[msg.Event.SessionID]
	if !ok {
		l = list.New()
		q.queues[msg.Event.SessionID] = l
	}
	l.PushBack(msg)
	for l.Len() > q.maxSize {
		l.Remove(l.Front())
	}
}

// After returns the buffered messages for sessionID with an ID greater
// than afterID, oldest first.
func (q *ReplayQueue) After(sessionID string, afterID int64) []Message {
	q.mu.RLock()
	defer q.mu.RUnlock()

	l, ok := q.queues[sessionID]
	if !ok {
		return nil
	}
	var missed []Message
	for e := l.Front(); e != nil; e = e.Next() {
		msg := e.Value.(Message)
		if msg.ID > afterID {
			missed = append(missed, msg)
		}
	}
	return missed
}

// Len returns the number of buffered messages for sessionID.
func (q *ReplayQueue) Len(sessionID string) int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if l, ok := q.queues[sessionID]; ok {
		return l.Len()
	}
	return 0
}

// Prune drops the backlog for sessionID.
func (q *ReplayQueue) Prune(sessionID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.queues, sessionID)
}
