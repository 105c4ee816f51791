package notification

import "time"

// 通知类别
const (
	KindApprovalRequest = "approval_request" // 新工作流等待审批
	KindOutcome         = "outcome"          // 决策结果通报
)

// 投递状态
const (
	DeliveryQueued    = "queued"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// 支持的渠道
const (
	ChannelWebSocket = "websocket"
	ChannelEmail     = "email"
	ChannelWebhook   = "webhook"
)

// Notification 一次通知投递尝试的记录
// 记录的是尝试，不是送达保证；delivery_status 由渠道异步回写
type Notification struct {
	ID         string `json:"id" gorm:"primaryKey;type:uuid"`
	WorkflowID string `json:"workflowId" gorm:"type:uuid;not null;index"`
	ApproverID string `json:"approverId" gorm:"type:uuid;index"` // 接收方；操作员通报时为操作员 ID

	Kind      string `json:"kind" gorm:"size:50;not null"`
	Channel   string `json:"channel" gorm:"size:30;not null"`
	Recipient string `json:"recipient" gorm:"size:255"` // 邮箱地址 / Webhook URL / 审批人 ID

	Subject string         `json:"subject" gorm:"size:255"`
	Body    string         `json:"body" gorm:"type:text"`
	Data    map[string]any `json:"data" gorm:"type:jsonb;serializer:json"`

	DeliveryStatus string `json:"deliveryStatus" gorm:"size:20;not null;default:queued;index"`
	DeliveryError  string `json:"deliveryError" gorm:"type:text"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

func (Notification) TableName() string {
	return "notifications"
}
