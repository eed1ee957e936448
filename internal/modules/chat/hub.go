package chat

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"servicemarket/internal/domain"
	"servicemarket/internal/metrics"
)

const writeWait = 10 * time.Second

// Peer is one authenticated websocket in an order room. Writes are serialized
// because gorilla connections allow a single concurrent writer.
type Peer struct {
	UserID int64

	conn *websocket.Conn
	mu   sync.Mutex
}

func (p *Peer) Write(f *domain.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return p.writeRaw(data)
}

func (p *Peer) writeRaw(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *Peer) ping() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Hub groups realtime connections by order.
type Hub struct {
	rooms map[int64]map[*Peer]struct{}
	mutex sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[int64]map[*Peer]struct{}),
	}
}

func NewPeer(userID int64, conn *websocket.Conn) *Peer {
	return &Peer{UserID: userID, conn: conn}
}

// Join adds p to the order's room; broadcasts reach it from then on.
func (h *Hub) Join(orderID int64, p *Peer) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	room, ok := h.rooms[orderID]
	if !ok {
		room = make(map[*Peer]struct{})
		h.rooms[orderID] = room
	}
	room[p] = struct{}{}
	metrics.WSConnections.Inc()
}

func (h *Hub) Leave(orderID int64, p *Peer) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.removeLocked(orderID, p)
}

func (h *Hub) removeLocked(orderID int64, p *Peer) {
	room, ok := h.rooms[orderID]
	if !ok {
		return
	}
	if _, ok := room[p]; !ok {
		return
	}
	delete(room, p)
	if len(room) == 0 {
		delete(h.rooms, orderID)
	}
	_ = p.conn.Close()
	metrics.WSConnections.Dec()
}

// Broadcast sends f to every peer of the order, sender included. Peers that
// cannot be written to are dropped.
func (h *Hub) Broadcast(orderID int64, f *domain.Frame) int {
	data, err := json.Marshal(f)
	if err != nil {
		return 0
	}

	h.mutex.RLock()
	peers := make([]*Peer, 0, len(h.rooms[orderID]))
	for p := range h.rooms[orderID] {
		peers = append(peers, p)
	}
	h.mutex.RUnlock()

	delivered := 0
	for _, p := range peers {
		if err := p.writeRaw(data); err != nil {
			h.Leave(orderID, p)
			continue
		}
		delivered++
	}
	return delivered
}

func (h *Hub) RoomSize(orderID int64) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms[orderID])
}

func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for orderID, room := range h.rooms {
		for p := range room {
			h.removeLocked(orderID, p)
		}
	}
}
