package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType 消息类型
type MessageType string

const (
	AssessmentResult MessageType = "assessment_result"
	ModelEvent       MessageType = "model_event"
	SystemStatus     MessageType = "system_status"
)

// Message 监控消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Client WebSocket客户端
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	clientID string
}

// WebSocketHub WebSocket中心
type WebSocketHub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	ctx        context.Context
	cancel     context.CancelFunc
	nextID     int
}

// NewWebSocketHub 创建WebSocket中心
func NewWebSocketHub() *WebSocketHub {
	ctx, cancel := context.WithCancel(context.Background())

	return &WebSocketHub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 启动WebSocket中心
func (h *WebSocketHub) Start() {
	defer zap.S().Info("websocket hub stopped")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			zap.S().Infow("monitor client connected", "client", client.clientID, "total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			zap.S().Infow("monitor client disconnected", "client", client.clientID, "total", total)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			// 关闭所有连接
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop 停止WebSocket中心
func (h *WebSocketHub) Stop() {
	h.cancel()
}

// HandleWebSocket 处理WebSocket连接
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.nextID++
	clientID := fmt.Sprintf("monitor-%d", h.nextID)
	h.mu.Unlock()

	client := &Client{
		conn:     conn,
		send:     make(chan []byte, 256),
		clientID: clientID,
	}

	h.register <- client

	go client.writePump()
	go client.readPump(h)
}

// Publish 广播一条类型化消息
func (h *WebSocketHub) Publish(msgType MessageType, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		zap.S().Warnw("cannot marshal monitor payload", "type", msgType, "error", err)
		return
	}
	message, err := json.Marshal(Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	})
	if err != nil {
		return
	}

	select {
	case h.broadcast <- message:
	default:
		zap.S().Warn("websocket broadcast queue is full, dropping message")
	}
}

// PublishStatus 周期性广播系统状态快照，直到中心停止
func (h *WebSocketHub) PublishStatus(collector *Collector, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.Publish(SystemStatus, collector.Snapshot())
		case <-h.ctx.Done():
			return
		}
	}
}

// writePump WebSocket写入泵
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				zap.S().Debugw("websocket write error", "client", c.clientID, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump WebSocket读取泵
func (c *Client) readPump(h *WebSocketHub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				zap.S().Debugw("websocket read error", "client", c.clientID, "error", err)
			}
			break
		}
	}
}
