package gateway

import (
	"time"

	"github.com/gorilla/websocket"

	"aggconflate/internal/model"
)

// client is one connected WebSocket peer, grounded on the teacher's
// Client.writePump write-coalescing (batch every queued message into a
// single frame) and readPump (ping/pong keepalive, no inbound commands
// expected — this gateway is read-only from the browser's perspective).
type client struct {
	conn  *websocket.Conn
	send  chan []byte
	done  chan struct{}
	subID int
	gw    *Gateway
}

// relayFrames drains this client's own FanOut subscription, marshaling
// each frame into the send buffer. Exits once the subscription channel is
// closed (fan-out shutdown) or done is closed (client disconnected) —
// never sends on c.send after disconnect, since that channel is closed by
// removeClient and a send to a closed channel panics regardless of select.
func (c *client) relayFrames(frames <-chan model.FrameUpdate) {
	for {
		select {
		case <-c.done:
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			envelope := mustEnvelope(c.gw.log, "frame", c.gw.symbol, f)
			if envelope == nil {
				continue
			}
			select {
			case c.send <- envelope:
			case <-c.done:
				return
			default:
			}
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer func() {
		c.gw.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
