// Package proxy implements session.Proxy over a websocket connection.
//
// Outbound frames are JSON-encoded model.Message values. Inbound frames are
// envelopes: {"type":"act","act":{...}} carries a participant action and
// {"type":"return"} means the participant handed the task back.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alfredjeanlab/nego/internal/model"
	"github.com/alfredjeanlab/nego/internal/presence"
	"github.com/alfredjeanlab/nego/internal/session"
)

const (
	frameAct    = "act"
	frameReturn = "return"

	inboxSize  = 32
	outboxSize = 64
)

// Options tunes a Conn. Zero values take defaults.
type Options struct {
	PingInterval time.Duration // default 30s
	WriteTimeout time.Duration // default 10s

	// OnBeat is called for every inbound frame and pong with one of the
	// presence beat kinds.
	OnBeat func(kind string)
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.OnBeat == nil {
		o.OnBeat = func(string) {}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type inbound struct {
	Type   string        `json:"type"`
	Action *model.Action `json:"act,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Conn is one participant's websocket connection.
type Conn struct {
	id   string
	ws   *websocket.Conn
	opts Options

	inbox  chan *model.Action
	outbox chan model.Message

	mu        sync.Mutex
	flags     model.ConnFlags
	released  bool
	abandoned chan struct{}
	returned  chan struct{}

	readDone  chan struct{} // closed when the read loop exits
	writeDone chan struct{} // closed when the write loop exits
	stop      chan struct{} // closed to stop the write loop
	stopOnce  sync.Once
}

// Compile-time check that Conn implements session.Proxy.
var _ session.Proxy = (*Conn)(nil)

// Upgrade upgrades an HTTP request to a websocket and starts serving it as
// the participant id.
func Upgrade(w http.ResponseWriter, r *http.Request, id string, opts Options) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return New(ws, id, opts), nil
}

// New wraps an established websocket and starts its read and write loops.
func New(ws *websocket.Conn, id string, opts Options) *Conn {
	opts.defaults()
	c := &Conn{
		id:        id,
		ws:        ws,
		opts:      opts,
		inbox:     make(chan *model.Action, inboxSize),
		outbox:    make(chan model.Message, outboxSize),
		abandoned: make(chan struct{}),
		returned:  make(chan struct{}),
		readDone:  make(chan struct{}),
		writeDone: make(chan struct{}),
		stop:      make(chan struct{}),
	}
	ws.SetPongHandler(func(string) error {
		c.opts.OnBeat(presence.BeatPong)
		return nil
	})
	opts.OnBeat(presence.BeatConnect)
	go c.readLoop()
	go c.writeLoop()
	return c
}

func (c *Conn) ID() string { return c.id }

// Flags returns the current connection flags.
func (c *Conn) Flags() model.ConnFlags {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flags
}

// MarkAbandoned flags the participant as abandoned; a pending or future Act
// returns model.ErrDeparted.
func (c *Conn) MarkAbandoned() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flags.Abandoned {
		return
	}
	c.flags.Abandoned = true
	close(c.abandoned)
}

// Observe queues msg for delivery. When the outbox is full the message is
// dropped and logged.
func (c *Conn) Observe(msg model.Message) {
	select {
	case <-c.writeDone:
		return
	default:
	}
	select {
	case c.outbox <- msg:
	default:
		c.opts.Logger.Warn("proxy outbox full, dropping message", "participant", c.id)
	}
}

// Act waits for the participant's next action.
func (c *Conn) Act(ctx context.Context, timeout time.Duration) (*model.Action, error) {
	if c.Flags().Departed() {
		return nil, model.ErrDeparted
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case a := <-c.inbox:
		return a, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.abandoned:
		return nil, model.ErrDeparted
	case <-c.returned:
		return nil, model.ErrDeparted
	case <-c.readDone:
		// Deliver anything that arrived before the connection dropped.
		select {
		case a := <-c.inbox:
			return a, nil
		default:
		}
		return nil, model.ErrDeparted
	case <-timer.C:
		c.mu.Lock()
		c.flags.Expired = true
		c.mu.Unlock()
		return nil, model.ErrDeparted
	}
}

// Release sends a normal close frame and waits up to timeout for the client
// to acknowledge it before dropping the connection.
func (c *Conn) Release(ctx context.Context, timeout time.Duration) error {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return nil
	}
	c.released = true
	c.mu.Unlock()

	c.stopWriter()
	<-c.writeDone

	select {
	case <-c.readDone:
		// Already gone; nothing to acknowledge.
		c.ws.Close()
		return nil
	default:
	}

	deadline := time.Now().Add(timeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session over")
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.ws.Close()
		<-c.readDone
		return fmt.Errorf("release %s: write close: %w", c.id, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var err error
	select {
	case <-c.readDone:
	case <-timer.C:
		err = fmt.Errorf("release %s: %w", c.id, context.DeadlineExceeded)
	case <-ctx.Done():
		err = fmt.Errorf("release %s: %w", c.id, ctx.Err())
	}
	c.ws.Close()
	<-c.readDone
	return err
}

func (c *Conn) stopWriter() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Conn) readLoop() {
	defer close(c.readDone)
	defer c.stopWriter()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if !c.released {
				c.flags.Disconnected = true
			}
			c.mu.Unlock()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.opts.Logger.Warn("proxy connection lost", "participant", c.id, "err", err)
			}
			return
		}
		c.opts.OnBeat(presence.BeatFrame)

		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.opts.Logger.Warn("proxy dropped malformed frame", "participant", c.id, "err", err)
			continue
		}
		switch in.Type {
		case frameAct:
			if in.Action == nil {
				continue
			}
			select {
			case c.inbox <- in.Action:
			default:
				c.opts.Logger.Warn("proxy inbox full, dropping action", "participant", c.id, "kind", in.Action.Kind)
			}
		case frameReturn:
			c.mu.Lock()
			if !c.flags.Returned {
				c.flags.Returned = true
				close(c.returned)
			}
			c.mu.Unlock()
		default:
			c.opts.Logger.Debug("proxy ignored frame", "participant", c.id, "type", in.Type)
		}
	}
}

func (c *Conn) writeLoop() {
	defer close(c.writeDone)

	ping := time.NewTicker(c.opts.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-c.stop:
			c.flush()
			return
		case msg := <-c.outbox:
			if err := c.write(msg); err != nil {
				c.opts.Logger.Warn("proxy write failed", "participant", c.id, "err", err)
				c.ws.Close()
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.ws.Close()
				return
			}
		}
	}
}

// flush writes whatever is still queued so the final notices reach the
// participant before the close frame.
func (c *Conn) flush() {
	for {
		select {
		case msg := <-c.outbox:
			if err := c.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(msg model.Message) error {
	c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return c.ws.WriteJSON(msg)
}
