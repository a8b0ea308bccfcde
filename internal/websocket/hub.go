package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"classdeck-backend/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TokenParser resolves a console token to its teacher.
type TokenParser interface {
	ParseToken(token string) (teacherID string, locationID int, err error)
}

// Hub relays each teacher's pub/sub channel to that teacher's open sockets.
// One Redis subscription exists per teacher with at least one connection.
type Hub struct {
	mu          sync.RWMutex
	connections map[string][]*websocket.Conn
	redisClient *redis.Client
	auth        TokenParser
	cancelFuncs map[string]context.CancelFunc
}

func NewHub(redisClient *redis.Client, auth TokenParser) *Hub {
	return &Hub{
		connections: make(map[string][]*websocket.Conn),
		redisClient: redisClient,
		auth:        auth,
		cancelFuncs: make(map[string]context.CancelFunc),
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// browsers cannot set headers on the upgrade request
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	teacherID, _, err := h.auth.ParseToken(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.registerConnection(teacherID, conn)

	go func() {
		defer h.unregisterConnection(teacherID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) registerConnection(teacherID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[teacherID] = append(h.connections[teacherID], conn)

	if len(h.connections[teacherID]) == 1 && h.redisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[teacherID] = cancel
		go h.subscribe(ctx, teacherID)
	}

	log.Printf("WebSocket connected: teacher %s (total: %d)", teacherID, len(h.connections[teacherID]))
}

func (h *Hub) unregisterConnection(teacherID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn.Close()

	conns := h.connections[teacherID]
	for i, c := range conns {
		if c == conn {
			h.connections[teacherID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	if len(h.connections[teacherID]) == 0 {
		delete(h.connections, teacherID)
		if cancel, ok := h.cancelFuncs[teacherID]; ok {
			cancel()
			delete(h.cancelFuncs, teacherID)
		}
	}

	log.Printf("WebSocket disconnected: teacher %s", teacherID)
}

func (h *Hub) subscribe(ctx context.Context, teacherID string) {
	pubsub := h.redisClient.Subscribe(ctx, services.UpdatesChannel(teacherID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(teacherID, []byte(msg.Payload))
		}
	}
}

// ConnectionCount is the number of open sockets for teacherID.
func (h *Hub) ConnectionCount(teacherID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[teacherID])
}

// broadcast holds the write lock: a gorilla conn allows one writer at a time.
func (h *Hub) broadcast(teacherID string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, conn := range h.connections[teacherID] {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("WebSocket write to teacher %s failed: %v", teacherID, err)
		}
	}
}

// SendToTeacher writes msg to every socket of teacherID without going through Redis.
func (h *Hub) SendToTeacher(teacherID string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.broadcast(teacherID, data)
}
