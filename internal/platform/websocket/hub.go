// Package websocket pushes calendar and wizard signals to browsers. Clients
// subscribe to per-instance topics such as "calendar/<id>" and receive every
// signal that instance emits.
package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/wellness/booking/internal/domain/booking"
	"github.com/wellness/booking/internal/platform/auth"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Event is the frame sent to clients for each signal.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound subscribe or unsubscribe request.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Topic names the stream of one component instance.
func Topic(kind, id string) string { return kind + "/" + id }

// Client is one connected browser.
type Client struct {
	ID     string
	Send   chan []byte
	topics map[string]struct{}
}

// Hub tracks clients by topic.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	all     map[*Client]struct{}
	logger  zerolog.Logger
	dropped func(topic string)
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger,
	}
}

// OnDrop installs a hook called when a frame is dropped for a slow client.
func (h *Hub) OnDrop(fn func(topic string)) { h.dropped = fn }

// NewClient creates an unregistered client with a buffered send queue.
func NewClient() *Client {
	return &Client{
		ID:     uuid.New().String(),
		Send:   make(chan []byte, sendBuffer),
		topics: make(map[string]struct{}),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[client] = struct{}{}
}

// Unregister removes the client from every topic and closes its queue.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for topic := range client.topics {
		h.removeLocked(client, topic)
	}
	delete(h.all, client)
	close(client.Send)
}

// Subscribe adds topics to a registered client.
func (h *Hub) Subscribe(client *Client, topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range topics {
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		h.clients[topic][client] = struct{}{}
		client.topics[topic] = struct{}{}
	}
}

// Unsubscribe removes topics from a client.
func (h *Hub) Unsubscribe(client *Client, topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		h.removeLocked(client, topic)
	}
}

func (h *Hub) removeLocked(client *Client, topic string) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
	delete(client.topics, topic)
}

// CloseTopic detaches every subscriber from topic, typically when the
// instance behind it is torn down.
func (h *Hub) CloseTopic(topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients[topic] {
		delete(client.topics, topic)
	}
	delete(h.clients, topic)
}

// Broadcast sends event to the subscribers of its topic. Slow clients lose
// the frame rather than block the sender.
func (h *Hub) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", event.Topic).Msg("marshal websocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[event.Topic] {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn().Str("client_id", client.ID).Str("topic", event.Topic).Msg("websocket client too slow, frame dropped")
			if h.dropped != nil {
				h.dropped(event.Topic)
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients subscribed to topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// Publisher returns a booking.Publisher that forwards signals to topic.
// Publishing never blocks the emitting component.
func (h *Hub) Publisher(topic string) booking.Publisher {
	return booking.PublisherFunc(func(sig booking.Signal) {
		data, err := json.Marshal(sig)
		if err != nil {
			h.logger.Error().Err(err).Str("signal", sig.SignalName()).Msg("marshal signal")
			return
		}
		h.Broadcast(Event{
			Type:      sig.SignalName(),
			Topic:     topic,
			Timestamp: time.Now().UTC(),
			Data:      data,
		})
	})
}

// TopicGuard decides whether sess may follow topic.
type TopicGuard func(sess booking.Session, topic string) bool

// Handler upgrades HTTP requests to WebSocket connections bound to a hub.
type Handler struct {
	hub      *Hub
	guard    TopicGuard
	upgrader gorillawebsocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler creates a handler. origins lists the allowed Origin values;
// empty allows any.
func NewHandler(hub *Hub, guard TopicGuard, origins []string, logger zerolog.Logger) *Handler {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	return &Handler{
		hub:    hub,
		guard:  guard,
		logger: logger,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				_, ok := allowed[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// RegisterRoutes mounts /ws on g.
func (wsh *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wsh.HandleConnect)
}

// HandleConnect upgrades the connection. Topics may be given up front as
// a comma separated "topics" query parameter.
func (wsh *Handler) HandleConnect(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	// The echo context is recycled once this returns; keep the session.
	sess := auth.SessionFromContext(c.Request().Context())
	client := NewClient()
	wsh.hub.Register(client)
	if q := c.QueryParam("topics"); q != "" {
		wsh.subscribe(sess, client, strings.Split(q, ","))
	}

	go wsh.writePump(client, ws)
	go wsh.readPump(sess, client, ws)
	return nil
}

func (wsh *Handler) subscribe(sess booking.Session, client *Client, topics []string) {
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		if wsh.guard != nil && !wsh.guard(sess, topic) {
			wsh.logger.Debug().Str("client_id", client.ID).Str("topic", topic).Msg("websocket subscription refused")
			continue
		}
		wsh.hub.Subscribe(client, topic)
	}
}

// HandleMessage applies one inbound client message.
func (wsh *Handler) HandleMessage(sess booking.Session, client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		wsh.subscribe(sess, client, msg.Topics)
	case "unsubscribe":
		wsh.hub.Unsubscribe(client, msg.Topics...)
	}
}

func (wsh *Handler) readPump(sess booking.Session, client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
	}()

	ws.SetReadLimit(4096)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		wsh.HandleMessage(sess, client, msg)
	}
}

func (wsh *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
