package remediation

import (
	"sync"
	"time"

	"backend/internal/metrics"
)

// Event 生命周期事件信封
type Event struct {
	Type      string    `json:"type"` // created、decision_recorded、status_changed
	Workflow  *Workflow `json:"workflow"`
	Timestamp time.Time `json:"timestamp"`
}

// EventPublisher 生命周期事件发布方
// 发布必须是非阻塞、尽力而为的，失败不得影响决策主路径
type EventPublisher interface {
	Publish(evt Event)
	ActiveObservers() int
}

// EventBus 进程内事件总线
// 按主题维护订阅者，发布端从不阻塞：接收方处理慢则丢弃
type EventBus struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]chan Event
	seq    uint64
	buffer int
}

// NewEventBus 创建事件总线
func NewEventBus(buffer int) *EventBus {
	if buffer <= 0 {
		buffer = 8
	}
	return &EventBus{
		subs:   make(map[string]map[uint64]chan Event),
		buffer: buffer,
	}
}

// Publish 发布事件到指定主题的全部订阅者
func (b *EventBus) Publish(evt Event) {
	if b == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	metrics.EventsPublishedTotal.WithLabelValues(evt.Type).Inc()

	b.mu.RLock()
	listeners := make([]chan Event, 0, len(b.subs[TopicApprovals]))
	for _, ch := range b.subs[TopicApprovals] {
		listeners = append(listeners, ch)
	}
	b.mu.RUnlock()

	for _, ch := range listeners {
		select {
		case ch <- evt:
		default:
			// 接收方处理慢则丢弃，保持非阻塞
		}
	}
}

// TopicApprovals 审批主题
const TopicApprovals = "approvals"

// Subscribe 订阅审批主题，返回事件通道与取消函数
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	b.seq++
	id := b.seq
	if _, ok := b.subs[TopicApprovals]; !ok {
		b.subs[TopicApprovals] = make(map[uint64]chan Event)
	}
	b.subs[TopicApprovals][id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if listeners, ok := b.subs[TopicApprovals]; ok {
			if ch, exists := listeners[id]; exists {
				delete(listeners, id)
				close(ch)
			}
			if len(listeners) == 0 {
				delete(b.subs, TopicApprovals)
			}
		}
	}
	return ch, cancel
}

// ActiveObservers 当前订阅者数量
func (b *EventBus) ActiveObservers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[TopicApprovals])
}
