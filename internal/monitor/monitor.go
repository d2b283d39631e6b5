// Package monitor exposes pipeline progress over a websocket hub and a
// small Gin HTTP surface, adapted from the teacher's dashboard Hub for a
// single purpose: broadcasting stage start/done events to whatever
// dashboard is watching a run. Per-stage counters are not broadcast.
package monitor

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/deadmanoz/p2ms-forensics/internal/config"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local operator dashboard, not a public surface
	},
}

// Hub maintains the set of connected dashboard clients and fans progress
// events out to all of them.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
	}
}

func (h *Hub) Run() {
	for message := range h.broadcast {
		h.mutex.Lock()
		for client := range h.clients {
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[monitor] websocket write error: %v", err)
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

func (h *Hub) subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[monitor] failed to upgrade websocket: %v", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	h.mutex.Unlock()

	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			h.mutex.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// StageEvent is the JSON shape broadcast on every stage transition.
type StageEvent struct {
	Stage     string `json:"stage"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// BroadcastStageChange announces a stage entering "running" or "done".
func (h *Hub) BroadcastStageChange(stage, status string) {
	payload, err := json.Marshal(StageEvent{Stage: stage, Status: status, Timestamp: time.Now().Unix()})
	if err != nil {
		log.Printf("[monitor] marshal stage event: %v", err)
		return
	}
	h.broadcast <- payload
}

// ServeProgress runs a minimal Gin server exposing /ws for the dashboard
// websocket and /healthz for liveness checks. It blocks until the listener
// fails; callers typically run it in its own goroutine.
func ServeProgress(hub *Hub, cfg *config.Config) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ws", func(c *gin.Context) { hub.subscribe(c) })
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	port := os.Getenv("P2MS_MONITOR_PORT")
	if port == "" {
		port = "5340"
	}
	log.Printf("[monitor] serving progress dashboard on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Printf("[monitor] server stopped: %v", err)
	}
}
