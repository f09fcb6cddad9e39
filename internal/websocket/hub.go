// Package chatws streams live transcripts and food logs over websockets.
// Each connection follows one live feed and pushes a full, ordered snapshot
// whenever the feed changes.
package chatws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/saeid-a/CalibrateBack/internal/live"
	"go.uber.org/zap"
)

const (
	sendBuffer   = 32
	writeTimeout = 10 * time.Second
)

// Frame is every message the server writes.
type Frame struct {
	Type      string `json:"type"`
	Op        string `json:"op,omitempty"`
	ID        string `json:"id,omitempty"`
	Items     any    `json:"items,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Conn is the part of a websocket connection a Client uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// Client owns one socket. Writes go through send so only WritePump touches
// the connection for writing.
type Client struct {
	conn   Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
	once   sync.Once
}

func NewClient(parent context.Context, conn Conn, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

func (c *Client) Context() context.Context {
	return c.ctx
}

// Close ends the pumps and the connection. It is safe to call repeatedly.
func (c *Client) Close() {
	c.once.Do(func() {
		c.cancel()
		_ = c.conn.Close()
	})
}

// Send queues a frame. A client that cannot keep up is disconnected.
func (c *Client) Send(frame Frame) {
	if frame.Timestamp == "" {
		frame.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		c.log.Error("encode websocket frame", zap.Error(err))
		return
	}
	select {
	case <-c.ctx.Done():
	case c.send <- payload:
	default:
		c.log.Warn("websocket client too slow, disconnecting")
		c.Close()
	}
}

func (c *Client) SendError(message string) {
	c.Send(Frame{Type: "error", Error: message})
}

// WritePump drains the send queue until the client closes.
func (c *Client) WritePump() {
	defer c.Close()
	for {
		select {
		case <-c.ctx.Done():
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}

// ReadPump hands every text frame to handle until the peer disconnects.
func (c *Client) ReadPump(handle func(payload []byte)) {
	defer c.Close()
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if handle != nil {
			handle(payload)
		}
	}
}

// Stream pushes the feed's snapshot, then a new one after every change.
// onChange, when set, runs after each pushed change.
func Stream[T live.Document](c *Client, feed *live.Feed[T], onChange func(live.Event)) {
	defer c.Close()
	c.Send(Frame{Type: "snapshot", Items: feed.Snapshot()})
	for {
		items, event, err := feed.Next(c.ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, live.ErrFeedClosed) {
				c.log.Warn("live feed ended", zap.Error(err))
			}
			return
		}
		c.Send(Frame{Type: "snapshot", Op: string(event.Op), ID: event.DocID, Items: items})
		if onChange != nil {
			onChange(event)
		}
	}
}

// drain writes whatever is queued, used when a socket fails before its
// pumps start.
func (c *Client) drain() {
	for {
		select {
		case payload := <-c.send:
			_ = c.conn.WriteMessage(websocket.TextMessage, payload)
		default:
			return
		}
	}
}
