package server

import (
	"context"
	"sync"
	"time"
)

const (
	// RealtimeEventSyncActivity signals that pushed or resolved rows changed
	// one or more relations for the subscriber's company.
	RealtimeEventSyncActivity = "sync-activity"
)

// RealtimeMessage is a best-effort hint that a pull is worthwhile. It is
// not durable and carries no row data.
type RealtimeMessage struct {
	CompanyID string
	EventType string
	Tables    []string
	Timestamp time.Time
}

// RealtimeDispatcher fans sync-activity hints out to subscribed terminals,
// keyed by company. Publishing never blocks; slow subscribers drop messages.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

// NewRealtimeDispatcher constructs an empty dispatcher.
func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a listener for the company's activity. The returned
// cleanup is idempotent and also runs when ctx is cancelled.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, companyID string) (<-chan RealtimeMessage, func()) {
	if companyID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(companyID, subscriber)
	cleanup := func() {
		d.unregisterSubscriber(companyID, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the message to every live subscriber of the company.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.CompanyID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.CompanyID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
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

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(companyID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[companyID]; !ok {
		d.subscribers[companyID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[companyID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(companyID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[companyID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, companyID)
		}
	}
	d.mu.Unlock()
}
