package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/saeid-a/CalibrateBack/internal/live"
	"go.uber.org/zap"
)

// ChangeChannel is the NOTIFY channel written by the change triggers.
const ChangeChannel = "calibrate_changes"

const reconnectDelay = 2 * time.Second

type publisher interface {
	Publish(event live.Event)
}

// ChangeFeed turns Postgres notifications into live events. It holds one
// pooled connection for LISTEN and loads changed rows through the pool.
type ChangeFeed struct {
	pool     *pgxpool.Pool
	messages *MessageRepository
	foodLogs *FoodLogRepository
	log      *zap.Logger
}

func NewChangeFeed(pool *pgxpool.Pool, log *zap.Logger) *ChangeFeed {
	return &ChangeFeed{
		pool:     pool,
		messages: NewMessageRepository(pool),
		foodLogs: NewFoodLogRepository(pool),
		log:      log,
	}
}

// Run listens until ctx is cancelled, reconnecting after failures.
// Notifications sent while no listener is attached are lost, so every
// reconnect is followed by a resync event per collection.
func (f *ChangeFeed) Run(ctx context.Context, out publisher) error {
	for reconnect := false; ; reconnect = true {
		err := f.listen(ctx, out, reconnect)
		if ctx.Err() != nil {
			return nil
		}
		f.log.Warn("change feed interrupted, reconnecting", zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *ChangeFeed) listen(ctx context.Context, out publisher, resync bool) error {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		return err
	}
	f.log.Info("listening for store changes", zap.String("channel", ChangeChannel), zap.Bool("resync", resync))
	if resync {
		out.Publish(live.Resync(live.CollectionMessages))
		out.Publish(live.Resync(live.CollectionFoodLogs))
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		event, err := f.resolve(ctx, notification.Payload)
		if err != nil {
			f.log.Warn("skipping change notification",
				zap.String("payload", notification.Payload),
				zap.Error(err))
			continue
		}
		out.Publish(event)
	}
}

func (f *ChangeFeed) resolve(ctx context.Context, payload string) (live.Event, error) {
	n, err := live.ParseNotification(payload)
	if err != nil {
		return live.Event{}, err
	}
	event := live.Event{
		Collection: n.Collection,
		Op:         live.OpFromTrigger(n.Op),
		Key:        n.Key,
		DocID:      n.ID,
	}
	if event.Op == live.OpRemoved {
		return event, nil
	}

	switch n.Collection {
	case live.CollectionMessages:
		message, err := f.messages.GetByID(ctx, n.Key, n.ID)
		if err != nil {
			return live.Event{}, err
		}
		event.Doc = *message
	case live.CollectionFoodLogs:
		log, err := f.foodLogs.GetByID(ctx, n.ID)
		if err != nil {
			return live.Event{}, err
		}
		event.Doc = *log
	default:
		return live.Event{}, errors.New("unknown collection " + n.Collection)
	}
	return event, nil
}
