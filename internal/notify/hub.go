// Package notify is the best-effort change notifier: a websocket fan-out
// telling a store "something changed, pull now". Delivery is not
// guaranteed and correctness never depends on it; the timer-driven sync
// cycle is the backstop.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/just-nadir/justpos-sync/internal/logger"
)

// EventDataUpdate is the only event type. The payload carries no semantic
// data beyond "re-pull now".
const EventDataUpdate = "data_update"

type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub manages subscribed store connections, one room per store id.
type Hub struct {
	rooms   map[string]map[*websocket.Conn]bool
	roomsMu sync.RWMutex

	queue chan string // store ids with a pending notification

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		rooms:  make(map[string]map[*websocket.Conn]bool),
		queue:  make(chan string, 64),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the notification loop.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.notifyLoop()
}

// Stop closes all connections and waits for the loop to exit.
func (h *Hub) Stop() {
	h.cancel()

	h.roomsMu.Lock()
	for _, room := range h.rooms {
		for conn := range room {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
	}
	h.rooms = make(map[string]map[*websocket.Conn]bool)
	h.roomsMu.Unlock()

	h.wg.Wait()
}

// Notify queues a data_update for every terminal subscribed under storeID.
// When the queue is full the notification is dropped; the store's next
// timer tick covers it.
func (h *Hub) Notify(storeID string) {
	select {
	case h.queue <- storeID:
	case <-h.ctx.Done():
	default:
		logger.Log.Warn("Notification queue full, dropping wake",
			zap.String("store_id", storeID))
	}
}

func (h *Hub) notifyLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case storeID := <-h.queue:
			data, err := json.Marshal(Message{Type: EventDataUpdate, Timestamp: time.Now()})
			if err != nil {
				continue
			}

			h.roomsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(h.rooms[storeID]))
			for conn := range h.rooms[storeID] {
				conns = append(conns, conn)
			}
			h.roomsMu.RUnlock()

			for _, conn := range conns {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					logger.Log.Debug("Failed to notify client, dropping connection",
						zap.String("store_id", storeID), zap.Error(err))
					h.remove(storeID, conn)
				}
			}
		}
	}
}

// Subscribe registers an accepted connection under storeID and blocks
// reading it until the peer disconnects.
func (h *Hub) Subscribe(storeID string, conn *websocket.Conn) {
	h.roomsMu.Lock()
	if h.rooms[storeID] == nil {
		h.rooms[storeID] = make(map[*websocket.Conn]bool)
	}
	h.rooms[storeID][conn] = true
	count := len(h.rooms[storeID])
	h.roomsMu.Unlock()

	logger.Log.Info("Store subscribed to notifications",
		zap.String("store_id", storeID), zap.Int("connections", count))

	defer h.remove(storeID, conn)
	for {
		// Clients send nothing; reading just detects disconnects.
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *Hub) remove(storeID string, conn *websocket.Conn) {
	h.roomsMu.Lock()
	room, ok := h.rooms[storeID]
	if ok && room[conn] {
		delete(room, conn)
		if len(room) == 0 {
			delete(h.rooms, storeID)
		}
		h.roomsMu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		logger.Log.Info("Store connection closed", zap.String("store_id", storeID))
		return
	}
	h.roomsMu.Unlock()
}

// ClientCount returns the number of live connections for a store.
func (h *Hub) ClientCount(storeID string) int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms[storeID])
}
