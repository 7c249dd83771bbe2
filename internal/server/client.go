package server

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/codechrono/chrono/internal/errors"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	maxMessage   = 4096
)

// closeSend signals the client to shut down. Safe to call repeatedly and
// from any goroutine; the send channel itself is never closed.
func (c *Client) closeSend() {
	c.sendOnce.Do(func() {
		close(c.done)
	})
}

// queue hands msg to writePump without blocking. Messages for a client
// that is shutting down or hopelessly behind are dropped.
func (c *Client) queue(msg Message) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		log.Printf("server: client send buffer full, dropping %s", msg.Type)
	}
}

// writePump writes queued messages to the connection and pings it every
// pingInterval. It owns all writes and closes the connection on exit.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("server: failed to marshal %s: %v", msg.Type, err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("server: write error: %v", err)
				c.closeSend()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeSend()
				return
			}
		}
	}
}

// readPump reads client messages until the connection fails, then
// unregisters the client.
func (c *Client) readPump() {
	defer func() {
		remaining := c.server.removeClient(c)
		c.closeSend()
		log.Printf("server: client disconnected (%d remaining)", remaining)
	}()

	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				log.Printf("server: read error: %v", err)
			}
			return
		}
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.queue(NewErrorMessage("", apperrors.InvalidMessage("message is not valid JSON")))
		return
	}
	if !c.limiter.Allow() {
		c.queue(NewErrorMessage(msg.ID, apperrors.New(apperrors.CodeServerRateLimited,
			"too many commands, slow down")))
		return
	}

	switch msg.Type {
	case MessageTypeTimerCommand:
		var cmd CommandPayload
		if len(msg.Payload) == 0 {
			c.queue(NewErrorMessage(msg.ID, apperrors.InvalidMessage("missing payload")))
			return
		}
		if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
			c.queue(NewErrorMessage(msg.ID, apperrors.InvalidMessage("invalid command payload")))
			return
		}
		snap, err := c.server.execute(cmd)
		if err != nil {
			c.queue(NewErrorMessage(msg.ID, err))
			return
		}
		c.queue(NewCommandResultMessage(msg.ID, cmd.Command, snap))
	default:
		c.queue(NewErrorMessage(msg.ID, apperrors.New(apperrors.CodeServerHandlerMissing,
			"unknown message type: "+string(msg.Type))))
	}
}
