package server

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/campaignboard/internal/campaigns"
	"github.com/gin-gonic/gin"
)

const (
	RealtimeEventActivity  = "activity"
	realtimeEventHeartbeat = "heartbeat"
	realtimeSourceBackend  = "campaignboard-backend"
)

type RealtimeMessage struct {
	EventType string
	Activity  campaigns.Activity
	Timestamp time.Time
}

// RealtimeDispatcher fans activity out to every stream subscriber. A subscriber
// whose buffer is full misses the message rather than stalling the publisher.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream that lives until ctx ends or the returned cleanup runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context) (<-chan RealtimeMessage, func()) {
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(subscriber)

	done := make(chan struct{})
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(subscriber.id)
			close(done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cleanup()
		case <-done:
		}
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	d.mu.RLock()
	if len(d.subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// NotifyActivity publishes a committed activity entry to every subscriber.
func (d *RealtimeDispatcher) NotifyActivity(activity campaigns.Activity) {
	d.Publish(RealtimeMessage{
		EventType: RealtimeEventActivity,
		Activity:  activity,
		Timestamp: time.Now().UTC(),
	})
}

// SubscriberCount reports the number of open streams.
func (d *RealtimeDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(subscriberID int64) {
	d.mu.Lock()
	delete(d.subscribers, subscriberID)
	d.mu.Unlock()
}

func (h *httpHandler) handleEventStream(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx)
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, newActivityPayload(message.Activity))
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{
				"source":    realtimeSourceBackend,
				"timestamp": formatTimestamp(tick),
			})
			return true
		}
	})
}
