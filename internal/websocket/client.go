package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxCommandSize = 512
	sendBuffer     = 256
)

// Stats streams are read-only, so any origin may watch them.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Client is one stats stream connection. The hub owns send and closes it on
// unregister.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
}

// command is what a watcher may send: subscribe or unsubscribe to a topic
type command struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

// NewClient creates a client bound to hub
func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: logger.With("client_id", id),
	}
}

// handle applies cmd to the hub and returns the reply for the watcher
func (c *Client) handle(cmd command) Message {
	reply := Message{Type: MessageTypeError, Topic: cmd.Topic, Timestamp: time.Now()}

	switch cmd.Type {
	case MessageTypeSubscribe:
		if !validTopic(cmd.Topic) {
			reply.Data = map[string]string{"error": `topic must be "ladder" or "player:<identity>"`}
			return reply
		}
		c.hub.Subscribe(c, cmd.Topic)
		reply.Type = MessageTypeSubscribed
	case MessageTypeUnsubscribe:
		c.hub.Unsubscribe(c, cmd.Topic)
		reply.Type = MessageTypeUnsubscribed
	default:
		reply.Data = map[string]string{"error": "unknown command " + cmd.Type}
	}
	return reply
}

// reply queues msg for the writer, dropping it when the buffer is full
func (c *Client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to encode reply", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("send buffer full, dropping reply", "type", msg.Type)
	}
}

// readCommands decodes watcher commands until the connection fails
func (c *Client) readCommands() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxCommandSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket closed unexpectedly", "error", err)
			}
			return
		}

		var cmd command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.reply(Message{
				Type:      MessageTypeError,
				Data:      map[string]string{"error": "invalid command"},
				Timestamp: time.Now(),
			})
			continue
		}
		c.reply(c.handle(cmd))
	}
}

// writeEvents sends one frame per queued event and keeps the peer alive with
// control pings
func (c *Client) writeEvents() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades the request and attaches the connection to hub
func ServeWs(hub *Hub, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(hub, conn, logger)
	hub.Register(client)
	go client.writeEvents()
	go client.readCommands()
}
