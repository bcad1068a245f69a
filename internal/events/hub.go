// Package events fans live submission events out to connected clients.
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/exedis/omnicore-back/internal/logging"
	"github.com/exedis/omnicore-back/internal/models"
)

const (
	defaultBufferSize     = 16
	defaultMaxSubscribers = 10
)

// ErrTooManySubscribers is returned when a user already has the maximum number of open streams.
var ErrTooManySubscribers = errors.New("too many subscribers for user")

type subscriber struct {
	id     int64
	stream chan models.Event
	done   chan struct{}
}

// detach closes the stream and releases the ctx watcher. Callers hold h.mu.
func (s *subscriber) detach() {
	close(s.stream)
	close(s.done)
}

// Hub is a per-user publish/subscribe registry. Events are not buffered for
// users without subscribers.
type Hub struct {
	mu             sync.RWMutex
	subscribers    map[string]map[int64]*subscriber
	nextID         int64
	bufferSize     int
	maxSubscribers int
	logger         *logging.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		subscribers:    make(map[string]map[int64]*subscriber),
		bufferSize:     defaultBufferSize,
		maxSubscribers: defaultMaxSubscribers,
		logger:         logger,
	}
}

// Subscribe registers a stream for userID. The stream is closed when ctx is
// done or the returned cancel func is called, whichever happens first.
func (h *Hub) Subscribe(ctx context.Context, userID string) (<-chan models.Event, func(), error) {
	h.mu.Lock()
	conns := h.subscribers[userID]
	if conns == nil {
		conns = make(map[int64]*subscriber)
		h.subscribers[userID] = conns
	}
	if len(conns) >= h.maxSubscribers {
		h.mu.Unlock()
		h.logger.Warnf("Max subscribers reached for user %s", userID)
		return nil, nil, ErrTooManySubscribers
	}
	h.nextID++
	sub := &subscriber{id: h.nextID, stream: make(chan models.Event, h.bufferSize), done: make(chan struct{})}
	conns[sub.id] = sub
	total := len(conns)
	h.mu.Unlock()

	h.logger.Debugf("Added subscriber for user %s (total: %d)", userID, total)

	var once sync.Once
	cancel := func() {
		once.Do(func() { h.unsubscribe(userID, sub) })
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()
	return sub.stream, cancel, nil
}

// Publish delivers event to every current subscriber of userID without
// blocking. Slow subscribers miss events.
func (h *Hub) Publish(userID string, event models.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subscribers[userID] {
		select {
		case sub.stream <- event:
		default:
			h.logger.Warnf("Dropping event for slow subscriber of user %s", userID)
		}
	}
}

// Subscribers returns the number of open streams for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[userID])
}

// Close drops every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, conns := range h.subscribers {
		for _, sub := range conns {
			sub.detach()
		}
		delete(h.subscribers, userID)
	}
}

func (h *Hub) unsubscribe(userID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.subscribers[userID]
	if !ok {
		return
	}
	if _, ok := conns[sub.id]; !ok {
		return
	}
	delete(conns, sub.id)
	sub.detach()
	if len(conns) == 0 {
		delete(h.subscribers, userID)
	}
	h.logger.Debugf("Removed subscriber for user %s (remaining: %d)", userID, len(conns))
}
