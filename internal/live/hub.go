package live

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const subscriptionBuffer = 32

type Hub struct {
	topics     map[string]map[string]map[*Subscription]struct{}
	register   chan *Subscription
	unregister chan *Subscription
	publish    chan Event
	done       chan struct{}
	log        *zap.Logger
}

type Subscription struct {
	hub        *Hub
	collection string
	key        string
	events     chan Event
	closeOnce  sync.Once
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		topics:     make(map[string]map[string]map[*Subscription]struct{}),
		register:   make(chan *Subscription),
		unregister: make(chan *Subscription),
		publish:    make(chan Event, 64),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run owns the subscription table until ctx is cancelled. Every open
// subscription is closed on the way out.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for _, keys := range h.topics {
			for _, set := range keys {
				for sub := range set {
					sub.close()
				}
			}
		}
		h.topics = nil
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case sub := <-h.register:
			keys, ok := h.topics[sub.collection]
			if !ok {
				keys = make(map[string]map[*Subscription]struct{})
				h.topics[sub.collection] = keys
			}
			set, ok := keys[sub.key]
			if !ok {
				set = make(map[*Subscription]struct{})
				keys[sub.key] = set
			}
			set[sub] = struct{}{}
		case sub := <-h.unregister:
			h.remove(sub)
		case event := <-h.publish:
			h.deliver(event)
		}
	}
}

// Subscribe registers interest in one collection/key pair. The returned
// subscription must be closed with Unsubscribe once the view goes away.
func (h *Hub) Subscribe(collection, key string) *Subscription {
	sub := &Subscription{
		hub:        h,
		collection: collection,
		key:        key,
		events:     make(chan Event, subscriptionBuffer),
	}
	select {
	case h.register <- sub:
	case <-h.done:
		sub.close()
	}
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

func (h *Hub) Publish(event Event) {
	select {
	case h.publish <- event:
	case <-h.done:
	}
}

func (s *Subscription) Events() <-chan Event {
	return s.events
}

func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.events) })
}

func (h *Hub) remove(sub *Subscription) {
	keys, ok := h.topics[sub.collection]
	if !ok {
		return
	}
	set, ok := keys[sub.key]
	if !ok {
		return
	}
	if _, exists := set[sub]; exists {
		delete(set, sub)
		sub.close()
	}
	if len(set) == 0 {
		delete(keys, sub.key)
	}
	if len(keys) == 0 {
		delete(h.topics, sub.collection)
	}
}

func (h *Hub) deliver(event Event) {
	keys, ok := h.topics[event.Collection]
	if !ok {
		return
	}
	if event.Key != "" {
		h.sendTo(keys, event.Key, event)
		return
	}
	for key := range keys {
		h.sendTo(keys, key, event)
	}
}

func (h *Hub) sendTo(keys map[string]map[*Subscription]struct{}, key string, event Event) {
	set, ok := keys[key]
	if !ok {
		return
	}
	for sub := range set {
		select {
		case sub.events <- event:
		default:
			h.log.Warn("dropping slow subscriber",
				zap.String("collection", sub.collection),
				zap.String("key", sub.key))
			delete(set, sub)
			sub.close()
		}
	}
	if len(set) == 0 {
		delete(keys, key)
	}
}
