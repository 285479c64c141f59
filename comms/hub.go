package comms

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/CodedInternet/rcdrive/onboard"
)

const (
	SEND_QUEUE_SIZE = 16
	WRITE_WAIT      = time.Second
	MAX_FRAME_SIZE  = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Client struct {
	ID     uuid.UUID
	Remote string

	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected control clients. Inbound frames are handed to the
// control loop through inbox; outbound frames are queued per client and
// dropped when a client falls behind.
type Hub struct {
	lock    sync.RWMutex
	clients map[uuid.UUID]*Client
	inbox   chan<- onboard.Event
	logger  *log.Logger
}

func NewHub(inbox chan<- onboard.Event, logger *log.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]*Client),
		inbox:   inbox,
		logger:  logger,
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Print("upgrade:", err)
		return
	}
	conn.SetReadLimit(MAX_FRAME_SIZE)

	client := &Client{
		ID:     uuid.New(),
		Remote: r.RemoteAddr,
		conn:   conn,
		send:   make(chan []byte, SEND_QUEUE_SIZE),
	}
	h.register(client)
	h.inbox <- onboard.Event{Kind: onboard.EventConnect, Client: client.ID.String(), Remote: client.Remote}

	go h.writer(client)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Printf("[%s][error] read: %v", client.ID, err)
			}
			break
		}
		h.inbox <- onboard.Event{Kind: onboard.EventMessage, Client: client.ID.String(), Payload: msg}
	}

	h.unregister(client)
	h.inbox <- onboard.Event{Kind: onboard.EventDisconnect, Client: client.ID.String()}
}

// Broadcast queues payload for every client without blocking.
func (h *Hub) Broadcast(payload string) {
	h.lock.RLock()
	defer h.lock.RUnlock()

	msg := []byte(payload)
	for _, client := range h.clients {
		select {
		case client.send <- msg:
		default:
			h.logger.Printf("[%s] send queue full, dropping frame", client.ID)
		}
	}
}

func (h *Hub) Count() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(client *Client) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) unregister(client *Client) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.send)
	}
}

func (h *Hub) writer(client *Client) {
	defer client.conn.Close()

	for msg := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(WRITE_WAIT))
		if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Printf("[%s][error] write: %v", client.ID, err)
			return
		}
	}
	client.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
