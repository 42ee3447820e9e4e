package websocket

import (
	"encoding/json"
	"sync"

	"github.com/mautops/dispatch-gin/internal/auth"
	"github.com/mautops/dispatch-gin/internal/metrics"
	"github.com/sirupsen/logrus"
)

// 服务端推送的消息类型
const (
	MessageProgress  = "progress"
	MessageTaskEvent = "task_event"
)

// Message WebSocket 消息格式
type Message struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// MessageHandler 处理客户端发来的消息
type MessageHandler func(c *Client, msg Message)

// Hub 管理所有 WebSocket 连接
type Hub struct {
	// 已注册的客户端
	clients map[*Client]bool

	// 注册新客户端
	Register chan *Client

	// 注销客户端
	Unregister chan *Client

	handler MessageHandler

	// 互斥锁，保护 clients map 和 handler
	mu sync.RWMutex
}

// NewHub 创建新的 Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Run 运行 Hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logrus.WithFields(logrus.Fields{
				"client_id": client.ID,
				"user_id":   client.UserID,
			}).Debug("websocket client registered")

		case client := <-h.Unregister:
			h.mu.Lock()
			h.drop(client)
			h.mu.Unlock()
		}
		metrics.SetDeviceConnections(h.ClientCount())
	}
}

// OnMessage 设置客户端消息处理函数
func (h *Hub) OnMessage(handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

func (h *Hub) dispatch(c *Client, msg Message) {
	h.mu.RLock()
	handler := h.handler
	h.mu.RUnlock()
	if handler != nil {
		handler(c, msg)
	}
}

// drop 移除客户端并关闭发送队列,调用方持有写锁
func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
	}
}

// send 向匹配的客户端发送消息,发送队列已满的客户端会被断开,返回送达数
func (h *Hub) send(message []byte, match func(*Client) bool) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for client := range h.clients {
		if !match(client) {
			continue
		}
		select {
		case client.Send <- message:
			sent++
		default:
			h.drop(client)
		}
	}
	return sent
}

// SendToUser 向特定用户的所有连接发送消息
func (h *Hub) SendToUser(userID string, message []byte) int {
	return h.send(message, func(c *Client) bool { return c.UserID == userID })
}

// Notify 向用户发送一条带类型的消息,返回送达的连接数
func (h *Hub) Notify(userID, msgType, requestID string, data interface{}) int {
	message, err := encode(msgType, requestID, data)
	if err != nil {
		logrus.WithError(err).WithField("type", msgType).Error("failed to encode websocket message")
		return 0
	}
	return h.SendToUser(userID, message)
}

// Publish 向用户本人及所有管理员推送消息
func (h *Hub) Publish(userID, msgType string, data interface{}) int {
	message, err := encode(msgType, "", data)
	if err != nil {
		logrus.WithError(err).WithField("type", msgType).Error("failed to encode websocket message")
		return 0
	}
	return h.send(message, func(c *Client) bool {
		return c.UserID == userID || c.Role == auth.RoleAdmin
	})
}

// IsOnline 用户是否有在线连接,管理员的工人列表据此标记在线状态
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.UserID == userID {
			return true
		}
	}
	return false
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

func encode(msgType, requestID string, data interface{}) ([]byte, error) {
	msg := Message{Type: msgType, RequestID: requestID}
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = payload
	}
	return json.Marshal(msg)
}
