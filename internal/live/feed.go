package live

import (
	"context"
	"errors"
)

// ErrFeedClosed is returned by Next once the subscription has ended.
var ErrFeedClosed = errors.New("feed closed")

// Feed is a live, ordered result set: an initial snapshot followed by a new
// snapshot every time a change event alters the view.
type Feed[T Document] struct {
	sub  *Subscription
	view *View[T]
	load func() ([]T, error)
}

// Follow subscribes before loading the initial result set, so changes that
// race with load are replayed onto the view instead of being lost.
func Follow[T Document](hub *Hub, collection, key string, view *View[T], load func() ([]T, error)) (*Feed[T], error) {
	sub := hub.Subscribe(collection, key)
	docs, err := load()
	if err != nil {
		sub.Close()
		return nil, err
	}
	view.Reset(docs)
	return &Feed[T]{sub: sub, view: view, load: load}, nil
}

func (f *Feed[T]) Snapshot() []T {
	return f.view.Snapshot()
}

// Next blocks until an event changes the view and returns the new snapshot
// together with the event that produced it. A resync event reloads the
// whole result set.
func (f *Feed[T]) Next(ctx context.Context) ([]T, Event, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, Event{}, ctx.Err()
		case event, ok := <-f.sub.Events():
			if !ok {
				return nil, Event{}, ErrFeedClosed
			}
			if event.Op == OpResync {
				docs, err := f.load()
				if err != nil {
					return nil, event, err
				}
				f.view.Reset(docs)
				return f.view.Snapshot(), event, nil
			}
			if f.view.Apply(event) {
				return f.view.Snapshot(), event, nil
			}
		}
	}
}

func (f *Feed[T]) Close() {
	f.sub.Close()
}
