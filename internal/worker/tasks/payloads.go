package tasks

// Task Types
const (
	TypeDeliverNotification = "notify:deliver"
	TypeRecordLearning      = "learning:record"
)

// DeliverNotificationPayload 通知投递任务载荷
type DeliverNotificationPayload struct {
	NotificationID string `json:"notification_id"`
}

// RecordLearningPayload 学习记录任务载荷
// 只携带工作流 ID，处理时重新加载终态数据
type RecordLearningPayload struct {
	WorkflowID string `json:"workflow_id"`
}
