package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"tapfarm-backend/internal/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler feeds the mini-app a live view of the reward state:
// a snapshot on connect, then balance and farming updates as claims land
// and accrual sweeps run.
type WebSocketHandler struct {
	ledger services.Ledger
	engine *services.RewardEngine
	hub    *WebSocketHub
}

type WebSocketHub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
}

type Client struct {
	UserID string
	Conn   *websocket.Conn

	// Serializes writes: snapshots and pongs come from the reader goroutine,
	// broadcasts from the hub goroutine, and gorilla/websocket allows only
	// one concurrent writer per connection.
	writeMu sync.Mutex
}

func (c *Client) write(msg *Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteJSON(msg)
}

type Message struct {
	Type   string      `json:"type"`
	UserID string      `json:"user_id,omitempty"`
	Data   interface{} `json:"data"`
}

func NewWebSocketHandler(ledger services.Ledger, engine *services.RewardEngine) *WebSocketHandler {
	hub := &WebSocketHub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 100),
	}

	go hub.run()

	return &WebSocketHandler{
		ledger: ledger,
		engine: engine,
		hub:    hub,
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		userID = c.Query("userId")
	}
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("failed to upgrade to websocket")
		return
	}

	client := &Client{
		UserID: userID,
		Conn:   conn,
	}

	h.hub.register <- client

	defer func() {
		h.hub.unregister <- client
		conn.Close()
	}()

	h.sendSnapshot(client)

	for {
		var msg Message
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).Warn("websocket read error")
			}
			break
		}

		h.handleMessage(client, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(client *Client, msg *Message) {
	switch msg.Type {
	case "PING":
		h.sendPong(client)
	case "REFRESH":
		h.sendSnapshot(client)
	}
}

func (h *WebSocketHandler) sendSnapshot(client *Client) {
	acc, err := h.ledger.Get(context.Background(), client.UserID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", client.UserID).Warn("failed to load account for ws snapshot")
		return
	}

	status := h.engine.EvaluateClaim(acc, time.Now())

	msg := Message{
		Type: "STATE_SNAPSHOT",
		Data: gin.H{
			"rewardBalance":        acc.RewardBalance,
			"pendingFarmingPoints": acc.PendingFarmingPoints,
			"loginStreakCount":     acc.LoginStreakCount,
			"farmingMultiplier":    acc.FarmingMultiplier,
			"canClaim":             status.CanClaim,
			"timeRemaining":        status.TimeRemaining,
		},
	}

	client.write(&msg)
}

func (h *WebSocketHandler) sendPong(client *Client) {
	msg := Message{
		Type: "PONG",
		Data: gin.H{
			"timestamp": time.Now().Unix(),
		},
	}

	client.write(&msg)
}

func (hub *WebSocketHub) run() {
	for {
		select {
		case client := <-hub.register:
			hub.clients[client.UserID] = client
			logrus.WithField("user_id", client.UserID).Debug("websocket client registered")

		case client := <-hub.unregister:
			if _, ok := hub.clients[client.UserID]; ok {
				delete(hub.clients, client.UserID)
				logrus.WithField("user_id", client.UserID).Debug("websocket client unregistered")
			}

		case message := <-hub.broadcast:
			hub.send(message)
		}
	}
}

func (hub *WebSocketHub) send(message *Message) {
	if message.UserID != "" {
		if client, ok := hub.clients[message.UserID]; ok {
			client.write(message)
		}
		return
	}
	for _, client := range hub.clients {
		client.write(message)
	}
}

// BroadcastBalanceUpdate implements services.Broadcaster.
func (h *WebSocketHandler) BroadcastBalanceUpdate(userID string, balance, pending float64) {
	h.hub.broadcast <- &Message{
		Type:   "BALANCE_UPDATE",
		UserID: userID,
		Data: gin.H{
			"rewardBalance":        balance,
			"pendingFarmingPoints": pending,
			"timestamp":            time.Now().Unix(),
		},
	}
}

// BroadcastFarmingUpdate implements services.Broadcaster.
func (h *WebSocketHandler) BroadcastFarmingUpdate(userID string, pending float64) {
	h.hub.broadcast <- &Message{
		Type:   "FARMING_UPDATE",
		UserID: userID,
		Data: gin.H{
			"pendingFarmingPoints": pending,
			"timestamp":            time.Now().Unix(),
		},
	}
}
