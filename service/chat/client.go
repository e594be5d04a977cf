package chat

import (
	"net"
	"sync"
	"time"

	"DMChat/service/presence"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConnConf holds the per-connection liveness and queue settings.
type ConnConf struct {
	PingInterval  time.Duration
	PongWait      time.Duration // read deadline, refreshed on every pong
	WriteWait     time.Duration
	SendQueueSize int
	ReadLimit     int64
}

func (c *ConnConf) norm() {
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 4096
	}
}

// Client is one websocket connection bound to one user. It implements
// presence.Handle: pushes go into a bounded queue drained by a single writer
// goroutine, so frames reach the peer in queue order.
type Client struct {
	ConnID    string
	UserId    string
	SessionId string
	WS        *websocket.Conn
	Remote    net.Addr
	CreatedAt time.Time

	conf ConnConf
	send chan []byte // 每连接独立发送队列
	done chan struct{}
	log  *zap.Logger

	mu           sync.Mutex
	closed       bool
	lastPresence uint64
	closeOnce    sync.Once
}

var (
	_ presence.Handle       = (*Client)(nil)
	_ presence.SessionBound = (*Client)(nil)
)

func NewClient(connID, userID string, ws *websocket.Conn, conf ConnConf, log *zap.Logger) *Client {
	conf.norm()
	c := &Client{
		ConnID:    connID,
		UserId:    userID,
		WS:        ws,
		CreatedAt: time.Now(),
		conf:      conf,
		send:      make(chan []byte, conf.SendQueueSize),
		done:      make(chan struct{}),
		log:       log.With(zap.String("user", userID), zap.String("conn", connID)),
	}
	if ws != nil {
		c.Remote = ws.RemoteAddr()
	}
	return c
}

func (c *Client) ID() string     { return c.ConnID }
func (c *Client) UserID() string { return c.UserId }

// SessionID is the login session the socket was authenticated with.
func (c *Client) SessionID() string { return c.SessionId }

// Push queues ev without blocking. A presence update whose version is not
// newer than the last one queued is dropped, so updates never arrive reordered.
func (c *Client) Push(ev presence.Event) error {
	payload, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return presence.ErrHandleClosed
	}
	if ev.Type == presence.EventPresenceUpdate {
		if ev.Version <= c.lastPresence {
			return nil
		}
		c.lastPresence = ev.Version
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return presence.ErrQueueFull
	}
}

// Close stops the writer, which sends a close frame and closes the socket. Safe to call repeatedly.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) Done() <-chan struct{} { return c.done }

// writePump is the only goroutine writing to WS.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.conf.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.WS.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(c.conf.WriteWait))
		_ = c.WS.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.WS.SetWriteDeadline(time.Now().Add(c.conf.WriteWait))
			if err := c.WS.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Info("[WS] write payload err", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.WS.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(c.conf.WriteWait)); err != nil {
				c.log.Info("[WS] ping err", zap.Error(err))
				return
			}
		case <-c.done:
			return
		}
	}
}

// readPump blocks until the peer goes away or misses the pong deadline.
func (c *Client) readPump() {
	c.WS.SetReadLimit(c.conf.ReadLimit)
	_ = c.WS.SetReadDeadline(time.Now().Add(c.conf.PongWait))
	c.WS.SetPongHandler(func(string) error {
		return c.WS.SetReadDeadline(time.Now().Add(c.conf.PongWait))
	})

	for {
		mt, data, err := c.WS.ReadMessage()
		if err != nil {
			c.logReadErr(err)
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		f, err := ParseFrame(data)
		if err != nil {
			c.log.Debug("[WS] bad frame", zap.Int("len", len(data)), zap.Error(err))
			continue
		}
		if f.Type == FramePing {
			_ = c.WS.SetReadDeadline(time.Now().Add(c.conf.PongWait))
			_ = c.Push(presence.Event{Type: FramePong})
		}
	}
}

func (c *Client) logReadErr(err error) {
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.log.Info("[WS] peer closed")
	default:
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			c.log.Info("[WS] read timeout", zap.Error(err))
			return
		}
		c.log.Debug("[WS] read err", zap.Error(err))
	}
}
