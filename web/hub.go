// Package web pushes reveal frames and winner lists to connected displays
// over websockets.
package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lottery-server-go/lottery"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Message is the envelope of everything sent to a display.
type Message struct {
	Type    string           `json:"type"`
	Frame   *lottery.Frame   `json:"frame,omitempty"`
	Winners []lottery.Winner `json:"winners,omitempty"`
}

const (
	TypeFrame   = "frame"
	TypeWinners = "winners"
)

// Hub fans out messages to display clients. It implements lottery.Presenter.
type Hub struct {
	Clients map[*Client]bool

	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan []byte

	upgrader websocket.Upgrader
	done     chan struct{}

	mu   sync.Mutex
	last []byte // latest winners message, replayed to new clients
}

type Client struct {
	Hub      *Hub
	Conn     *websocket.Conn
	Outgoing chan []byte
}

func NewHub() *Hub {
	return &Hub{
		Clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Run dispatches registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for c := range h.Clients {
				close(c.Outgoing)
				delete(h.Clients, c)
			}
			return
		case c := <-h.Register:
			h.Clients[c] = true
			h.mu.Lock()
			last := h.last
			h.mu.Unlock()
			if last != nil {
				c.Outgoing <- last
			}
		case c := <-h.Unregister:
			if h.Clients[c] {
				delete(h.Clients, c)
				close(c.Outgoing)
			}
		case msg := <-h.Broadcast:
			for c := range h.Clients {
				select {
				case c.Outgoing <- msg:
				default:
					log.Printf("Dropping slow display client %s", c.Conn.RemoteAddr())
					delete(h.Clients, c)
					close(c.Outgoing)
				}
			}
		}
	}
}

func (h *Hub) send(m Message) {
	b, err := json.Marshal(m)
	if err != nil {
		log.Printf("Error encoding %s message: %v", m.Type, err)
		return
	}
	if m.Type == TypeWinners {
		h.mu.Lock()
		h.last = b
		h.mu.Unlock()
	}
	select {
	case h.Broadcast <- b:
	default:
		log.Printf("Display broadcast queue full, dropping %s message", m.Type)
	}
}

func (h *Hub) ShowFrame(f lottery.Frame) {
	h.send(Message{Type: TypeFrame, Frame: &f})
}

func (h *Hub) ShowWinners(w []lottery.Winner) {
	if w == nil {
		w = []lottery.Winner{}
	}
	h.send(Message{Type: TypeWinners, Winners: w})
}

// ServeWS upgrades the request and registers the connection as a display.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading display connection: %v", err)
		return
	}
	c := &Client{Hub: h, Conn: conn, Outgoing: make(chan []byte, sendBuffer)}
	select {
	case h.Register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writeLoop()
	go c.readLoop()
}

// readLoop only consumes control frames; displays never send commands.
func (c *Client) readLoop() {
	defer func() {
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.Outgoing:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
