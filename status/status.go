// Package status broadcasts what the tool is doing to websocket clients.
package status

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mogaika/recursive_apply_transform/scene"
)

const (
	INFO = iota
	ERROR
	PROGRESS
)

type Status struct {
	Message  string    `json:"message"`
	Time     time.Time `json:"time"`
	Type     int       `json:"type"`
	Progress float32   `json:"progress"`
	Node     string    `json:"node,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func (c *client) writePump(h *Hub) {
	ticker := time.NewTicker(time.Second * 30)
	defer func() {
		ticker.Stop()
		h.unregister(c)
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(40 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("[status] ws write msg error: %v", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(40 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[status] ws write ping error: %v", err)
				return
			}
		}
	}
}

// Hub keeps the last status and pushes every new one to connected clients.
type Hub struct {
	lock     sync.Mutex
	clients  map[*client]bool
	last     *Status
	lastData []byte
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]bool)}
}

var Default = NewHub()

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ServeWs upgrades the request and streams statuses until the client leaves.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[status] upgrade error: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 32)}
	h.register(c)
	go c.writePump(h)
	go c.readPump(h)
}

// readPump drains control frames, the connection is write only otherwise
func (c *client) readPump(h *Hub) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.unregister(c)
			return
		}
	}
}

func (h *Hub) register(c *client) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.clients[c] = true
	if h.lastData != nil {
		c.send <- h.lastData
	}
}

func (h *Hub) unregister(c *client) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) Publish(s *Status) {
	if math.IsNaN(float64(s.Progress)) || math.IsInf(float64(s.Progress), 0) {
		s.Progress = 0
	}
	data, err := json.Marshal(s)
	if err != nil {
		log.Printf("[status] marshal error: %v", err)
		return
	}

	h.lock.Lock()
	defer h.lock.Unlock()
	h.last = s
	h.lastData = data
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.Printf("[status] client %v too slow, message dropped", c.conn.RemoteAddr())
		}
	}
}

// Last returns a copy of the latest status, nil if nothing was published.
func (h *Hub) Last() *Status {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.last == nil {
		return nil
	}
	s := *h.last
	return &s
}

func (h *Hub) Info(format string, a ...interface{}) {
	h.Publish(&Status{Message: fmt.Sprintf(format, a...), Time: time.Now(), Type: INFO})
}

func (h *Hub) Error(format string, a ...interface{}) {
	h.Publish(&Status{Message: fmt.Sprintf(format, a...), Time: time.Now(), Type: ERROR})
}

func (h *Hub) Progress(progress float32, format string, a ...interface{}) {
	h.Publish(&Status{Message: fmt.Sprintf(format, a...), Time: time.Now(), Type: PROGRESS, Progress: progress})
}

// ApplyProgress returns a callback for propagate.Progress reporting done/total.
func (h *Hub) ApplyProgress(total int) func(n *scene.Node, done int) {
	return func(n *scene.Node, done int) {
		var progress float32
		if total > 0 {
			progress = float32(done) / float32(total)
		}
		h.Publish(&Status{
			Message:  fmt.Sprintf("compensated %q (%d/%d)", n.Name, done, total),
			Time:     time.Now(),
			Type:     PROGRESS,
			Progress: progress,
			Node:     n.Name,
		})
	}
}

func Info(format string, a ...interface{})  { Default.Info(format, a...) }
func Error(format string, a ...interface{}) { Default.Error(format, a...) }

func Progress(progress float32, format string, a ...interface{}) {
	Default.Progress(progress, format, a...)
}
