package main

import (
	"context"
	"net/http"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// status-gateway bridges the worker's Redis status channel to WebSocket
// clients, so operators can watch dequeue/decode echoes live. It is a
// read-only observer with no effect on the saga.

var (
	redisAddr     = getEnv("REDIS_QUEUE", "localhost:6379")
	statusChannel = getEnv("INVENTORY_QUEUE_NAME", "inventory_service")
	listenAddr    = getEnv("GATEWAY_ADDR", ":8088")
	nodeID        = "status-gateway-" + uuid.New().String()[:8]

	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
)

// Hub tracks active connections and fans each status echo out to all of
// them.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	lock       sync.RWMutex
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
	}
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.lock.Lock()
			h.clients[client] = struct{}{}
			h.lock.Unlock()
			log.Info().Str("remote", client.conn.RemoteAddr().String()).Msg("client registered")
		case client := <-h.unregister:
			h.lock.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.lock.Unlock()
		case message := <-h.broadcast:
			h.lock.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer; drop the frame rather than block.
				}
			}
			h.lock.RUnlock()
		}
	}
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 256)}
	hub.register <- client
	go client.writePump()
	go client.readPump()
}

// subscribeStatus pumps every message on the status channel into the hub.
func subscribeStatus(ctx context.Context, rdb *redis.Client, hub *Hub) {
	pubsub := rdb.Subscribe(ctx, statusChannel)
	defer pubsub.Close()

	log.Info().Str("channel", statusChannel).Msg("subscribed to status channel")
	for msg := range pubsub.Channel() {
		hub.broadcast <- []byte(msg.Payload)
	}
}

func main() {
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Str("node", nodeID).Logger()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	hub := newHub()
	go hub.run()
	go subscribeStatus(context.Background(), rdb, hub)

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r)
	})

	log.Info().Str("addr", listenAddr).Msg("status gateway started")
	if err := http.ListenAndServe(listenAddr, nil); err != nil {
		log.Fatal().Err(err).Msg("listen and serve failed")
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
