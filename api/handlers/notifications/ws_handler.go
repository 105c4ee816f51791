package notifications

import (
	"encoding/json"
	"net/http"
	"time"

	"backend/internal/notification"
	"backend/internal/remediation"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const readDeadline = 2 * time.Minute

// clientMessage 客户端控制消息
type clientMessage struct {
	Type       string   `json:"type"`
	Topics     []string `json:"topics,omitempty"`
	ApproverID string   `json:"approver_id,omitempty"`
}

// WebSocketHandler 管理审批实时推送的 WebSocket 连接
type WebSocketHandler struct {
	hub      *notification.WebSocketHub
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建处理器
func NewWebSocketHandler(hub *notification.WebSocketHub) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 5 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Connect 升级连接并注册观察者
// approver_id 可选，带上后只接收与该审批人相关的事件并重放离线消息
func (h *WebSocketHandler) Connect(c *gin.Context) {
	if h == nil || h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "WebSocket 服务未就绪"})
		return
	}
	approverID := c.Query("approver_id")
	topics := c.QueryArray("topics")
	if len(topics) == 0 {
		topics = []string{remediation.TopicApprovals}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	conn.SetReadLimit(1024)
	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	h.hub.Register(approverID, topics, conn)
	_ = h.hub.WriteJSON(conn, gin.H{
		"type":    "connected",
		"message": "WebSocket 已连接",
		"topics":  topics,
	})

	go h.readLoop(conn)
}

// readLoop 处理客户端控制消息，连接断开时注销观察者
func (h *WebSocketHandler) readLoop(conn *websocket.Conn) {
	defer func() {
		h.hub.Unregister(conn)
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readDeadline))

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "ping":
			_ = h.hub.WriteJSON(conn, gin.H{
				"type":      "pong",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
		case "subscribe":
			// approver_id 可在连接后补设或变更；留空保持现有过滤
			h.hub.UpdateSubscription(conn, msg.ApproverID, msg.Topics)
			ack := gin.H{
				"type":   "subscribed",
				"topics": msg.Topics,
			}
			if msg.ApproverID != "" {
				ack["approver_id"] = msg.ApproverID
			}
			_ = h.hub.WriteJSON(conn, ack)
		}
	}
}
