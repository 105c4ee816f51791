package notification

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/remediation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout = 5 * time.Second
	sendBuffer   = 16
)

// clientConn 单个观察者连接
// 广播经 send 缓冲与专属写协程投递：发布方只入队，套接字 I/O
// 全部发生在写协程里，慢速观察者最多丢消息，拖不慢任何人
type clientConn struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu         sync.Mutex
	approverID string // 非空时只接收与该审批人相关的事件
	topics     map[string]struct{}
}

// matches 判断事件是否应推送给该观察者
func (c *clientConn) matches(evt remediation.Event) bool {
	c.mu.Lock()
	approverID := c.approverID
	topics := c.topics
	c.mu.Unlock()
	if len(topics) > 0 {
		if _, ok := topics[remediation.TopicApprovals]; !ok {
			return false
		}
	}
	if approverID == "" {
		return true
	}
	wf := evt.Workflow
	if wf == nil {
		return false
	}
	return wf.IsEligible(approverID) || wf.OperatorID == approverID
}

// enqueue 非阻塞入队，缓冲满时丢弃
func (c *clientConn) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
	}
}

// WebSocketHub 实时扇出通道
// 维护在线观察者集合，向其推送生命周期事件；投递尽力而为，
// 单个慢速或断开的观察者不得拖累其他人
type WebSocketHub struct {
	mu                sync.RWMutex
	clients           map[*websocket.Conn]*clientConn
	byApprover        map[string]map[*websocket.Conn]*clientConn
	offline           OfflineStore
	keepAliveInterval time.Duration
	logger            *zap.Logger
}

// HubOption 配置 hub
type HubOption func(*WebSocketHub)

// WithOfflineStore 指定离线存储
func WithOfflineStore(store OfflineStore) HubOption {
	return func(h *WebSocketHub) { h.offline = store }
}

// WithKeepAliveInterval 设置心跳间隔
func WithKeepAliveInterval(interval time.Duration) HubOption {
	return func(h *WebSocketHub) { h.keepAliveInterval = interval }
}

// NewWebSocketHub 创建 Hub
func NewWebSocketHub(opts ...HubOption) *WebSocketHub {
	hub := &WebSocketHub{
		clients:           make(map[*websocket.Conn]*clientConn),
		byApprover:        make(map[string]map[*websocket.Conn]*clientConn),
		offline:           NewMemoryOfflineStore(50),
		keepAliveInterval: 30 * time.Second,
		logger:            logger.Named("hub"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(hub)
		}
	}
	return hub
}

// Register 注册观察者连接
// approverID 可为空，表示不过滤；topics 为空时默认订阅审批主题
func (h *WebSocketHub) Register(approverID string, topics []string, conn *websocket.Conn) {
	client := &clientConn{
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
		approverID: approverID,
		topics:     sliceToSet(topics),
	}

	h.mu.Lock()
	h.clients[conn] = client
	if approverID != "" {
		if _, ok := h.byApprover[approverID]; !ok {
			h.byApprover[approverID] = make(map[*websocket.Conn]*clientConn)
		}
		h.byApprover[approverID][conn] = client
	}
	h.mu.Unlock()

	metrics.WebSocketConnectionsGauge.Inc()
	go h.writeLoop(client)
	if approverID != "" {
		h.replayOffline(context.Background(), approverID, client)
	}
	h.startKeepAlive(client)
}

// Unregister 移除连接
// 断开是观察者集合唯一的变更路径，移除不向系统其他部分抛错
func (h *WebSocketHub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	client, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		client.mu.Lock()
		approverID := client.approverID
		client.mu.Unlock()
		if approverID != "" {
			if conns, exists := h.byApprover[approverID]; exists {
				delete(conns, conn)
				if len(conns) == 0 {
					delete(h.byApprover, approverID)
				}
			}
		}
		close(client.done)
	}
	h.mu.Unlock()

	if ok {
		metrics.WebSocketConnectionsGauge.Dec()
	}
}

// WriteJSON 经连接级写锁向单个连接发送消息
// Hub 外的所有写入都必须走这里，避免并发写同一连接
func (h *WebSocketHub) WriteJSON(conn *websocket.Conn, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	h.mu.RLock()
	client, ok := h.clients[conn]
	h.mu.RUnlock()
	if !ok {
		return websocket.ErrCloseSent
	}
	return h.write(client, data)
}

// UpdateSubscription 更新连接的订阅主题与审批人过滤
// approverID 为空时保留现有过滤；topics 为 nil 时保留现有主题；
// 过滤变更会同步更新按审批人的索引并重放该审批人的离线消息
func (h *WebSocketHub) UpdateSubscription(conn *websocket.Conn, approverID string, topics []string) {
	h.mu.Lock()
	client, ok := h.clients[conn]
	if !ok {
		h.mu.Unlock()
		return
	}

	client.mu.Lock()
	prev := client.approverID
	if approverID != "" {
		client.approverID = approverID
	}
	if topics != nil {
		client.topics = sliceToSet(topics)
	}
	next := client.approverID
	client.mu.Unlock()

	changed := next != prev
	if changed {
		if prev != "" {
			if conns, exists := h.byApprover[prev]; exists {
				delete(conns, conn)
				if len(conns) == 0 {
					delete(h.byApprover, prev)
				}
			}
		}
		if _, exists := h.byApprover[next]; !exists {
			h.byApprover[next] = make(map[*websocket.Conn]*clientConn)
		}
		h.byApprover[next][conn] = client
	}
	h.mu.Unlock()

	if changed {
		h.replayOffline(context.Background(), next, client)
	}
}

// Publish 向所有匹配的观察者推送生命周期事件
// 实现 remediation.EventPublisher；只做入队，从不等待套接字 I/O，
// 断开的连接由写协程检测并注销
func (h *WebSocketHub) Publish(evt remediation.Event) {
	envelope := map[string]any{
		"type":      evt.Type,
		"workflow":  evt.Workflow,
		"timestamp": evt.Timestamp.UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		h.logger.Warn("序列化事件失败", zap.String("type", evt.Type), zap.Error(err))
		return
	}

	h.mu.RLock()
	snapshot := make([]*clientConn, 0, len(h.clients))
	for _, client := range h.clients {
		snapshot = append(snapshot, client)
	}
	h.mu.RUnlock()

	for _, client := range snapshot {
		if !client.matches(evt) {
			continue
		}
		client.enqueue(data)
	}
}

// ActiveObservers 当前在线观察者数量
func (h *WebSocketHub) ActiveObservers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SendToApprover 向指定审批人的全部连接推送消息，离线时转入离线缓存
func (h *WebSocketHub) SendToApprover(ctx context.Context, approverID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns := make([]*clientConn, 0, len(h.byApprover[approverID]))
	for _, client := range h.byApprover[approverID] {
		conns = append(conns, client)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return h.storeOffline(ctx, approverID, data)
	}

	var firstErr error
	for _, client := range conns {
		if err := h.write(client, data); err != nil {
			h.Unregister(client.conn)
			_ = client.conn.Close()
			_ = h.storeOffline(ctx, approverID, data)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// writeLoop 连接专属的写协程，串行消费广播队列
func (h *WebSocketHub) writeLoop(client *clientConn) {
	for {
		select {
		case data := <-client.send:
			if err := h.write(client, data); err != nil {
				h.Unregister(client.conn)
				_ = client.conn.Close()
				return
			}
		case <-client.done:
			return
		}
	}
}

func (h *WebSocketHub) write(client *clientConn, data []byte) error {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return client.conn.WriteMessage(websocket.TextMessage, data)
}

func (h *WebSocketHub) replayOffline(ctx context.Context, approverID string, client *clientConn) {
	if h.offline == nil {
		return
	}
	messages, err := h.offline.Drain(ctx, approverID)
	if err != nil {
		h.logger.Warn("离线消息重放失败", zap.String("approverId", approverID), zap.Error(err))
		return
	}
	for _, msg := range messages {
		if err := h.write(client, msg); err != nil {
			h.logger.Debug("推送离线消息失败", zap.Error(err))
			return
		}
	}
}

func (h *WebSocketHub) storeOffline(ctx context.Context, approverID string, payload []byte) error {
	if h.offline == nil {
		return nil
	}
	return h.offline.Append(ctx, approverID, payload)
}

func (h *WebSocketHub) startKeepAlive(client *clientConn) {
	if h.keepAliveInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(h.keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				client.mu.Lock()
				err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
				client.mu.Unlock()
				if err != nil {
					h.Unregister(client.conn)
					_ = client.conn.Close()
					return
				}
			case <-client.done:
				return
			}
		}
	}()
}

func sliceToSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}
