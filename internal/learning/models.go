package learning

import "time"

// Record 学习遥测记录，只写不改，供外部离线学习进程消费
type Record struct {
	ID         string `json:"id" gorm:"primaryKey;type:uuid"`
	WorkflowID string `json:"workflowId" gorm:"type:uuid;index"`

	RecordType      string         `json:"recordType" gorm:"size:50;not null"` // outcome、feedback
	DecisionOutcome string         `json:"decisionOutcome" gorm:"size:30"`
	ContextSnapshot map[string]any `json:"contextSnapshot" gorm:"type:jsonb;serializer:json"`
	Feedback        string         `json:"feedback" gorm:"type:text"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime;index"`
}

func (Record) TableName() string {
	return "learning_records"
}

// AggregateStats 聚合查询结果，仅用于可观测性，绝不反馈进状态机
type AggregateStats struct {
	ApprovalRate         float64       `json:"approval_rate"`
	AvgTimeToDecisionSec float64       `json:"avg_time_to_decision_seconds"`
	CommonRejectReasons  []ReasonCount `json:"common_rejection_reasons"`
}

// ReasonCount 拒绝原因计数
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int64  `json:"count"`
}
