package remediation

import "time"

// 工作流状态
const (
	StatusPending         = "pending"          // 等待决策
	StatusPartialApproval = "partial_approval" // 已有支持性批准，等待更高权限
	StatusApproved        = "approved"         // 终态：已批准
	StatusRejected        = "rejected"         // 终态：已拒绝
)

// 决策结果
const (
	OutcomeApproved = "approved"
	OutcomeRejected = "rejected"
)

// 紧急程度
const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// 生命周期事件类型
const (
	EventCreated          = "created"
	EventDecisionRecorded = "decision_recorded"
	EventStatusChanged    = "status_changed"
)

// IsTerminal 判断状态是否为终态
func IsTerminal(status string) bool {
	return status == StatusApproved || status == StatusRejected
}

// ValidUrgency 判断紧急程度取值是否合法
func ValidUrgency(urgency string) bool {
	switch urgency {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return true
	}
	return false
}

// Action 建议执行的纠正动作
type Action struct {
	Text     string `json:"text"`
	Priority int    `json:"priority"`
}

// EligibleApprover 创建时刻的审批人快照条目
// 同时固化权限级别，使已有工作流的裁决不受后续注册表变更影响
type EligibleApprover struct {
	ApproverID     string `json:"approverId"`
	AuthorityLevel int    `json:"authorityLevel"`
}

// Workflow 审批工作流
type Workflow struct {
	ID          string `json:"id" gorm:"primaryKey;type:uuid"`
	RequestID   string `json:"requestId" gorm:"size:100;not null;index"`
	OperatorID  string `json:"operatorId" gorm:"type:uuid;not null"` // 发起建议的外部操作员
	Title       string `json:"title" gorm:"size:255;not null"`
	Description string `json:"description" gorm:"type:text"`

	// 建议内容
	Actions        []Action `json:"actions" gorm:"type:jsonb;serializer:json"`
	RequiredLevel  int      `json:"requiredLevel" gorm:"not null"`
	Urgency        string   `json:"urgency" gorm:"size:20;not null;default:medium"`
	RiskAssessment string   `json:"riskAssessment" gorm:"type:text"`

	// 状态机
	Status string `json:"status" gorm:"size:30;not null;default:pending;index"`

	// 创建时刻固化的审批资格快照，此后不可变
	EligibleApprovers []EligibleApprover `json:"eligibleApprovers" gorm:"type:jsonb;serializer:json"`

	// 决策序列（只追加），按到达顺序排列
	Decisions []Decision `json:"decisions" gorm:"foreignKey:WorkflowID;references:ID"`

	// 通知投递簿记
	NotificationAttempts  int        `json:"notificationAttempts" gorm:"default:0"`
	LastNotifiedAt        *time.Time `json:"lastNotifiedAt"`
	LastNotificationError string     `json:"lastNotificationError" gorm:"type:text"`

	// 时间戳
	CreatedAt time.Time  `json:"createdAt" gorm:"not null;autoCreateTime;index"`
	UpdatedAt time.Time  `json:"updatedAt" gorm:"not null;autoUpdateTime"`
	DecidedAt *time.Time `json:"decidedAt"` // 进入终态的时刻
}

func (Workflow) TableName() string {
	return "remediation_workflows"
}

// IsEligible 判断审批人是否在资格快照内
func (w *Workflow) IsEligible(approverID string) bool {
	_, ok := w.SnapshotLevel(approverID)
	return ok
}

// SnapshotLevel 返回快照中记录的审批人权限级别
func (w *Workflow) SnapshotLevel(approverID string) (int, bool) {
	for _, e := range w.EligibleApprovers {
		if e.ApproverID == approverID {
			return e.AuthorityLevel, true
		}
	}
	return 0, false
}

// Terminal 判断工作流是否已终态
func (w *Workflow) Terminal() bool {
	return IsTerminal(w.Status)
}

// Decision 审批决策，只追加，不可编辑或删除
type Decision struct {
	ID         string `json:"id" gorm:"primaryKey;type:uuid"`
	WorkflowID string `json:"workflowId" gorm:"type:uuid;not null;index"`
	ApproverID string `json:"approverId" gorm:"type:uuid;not null"`
	Outcome    string `json:"outcome" gorm:"size:20;not null"` // approved、rejected
	Comments   string `json:"comments" gorm:"type:text"`

	// 到达顺序，同一工作流内单调递增
	Seq int `json:"seq" gorm:"not null"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
}

func (Decision) TableName() string {
	return "remediation_decisions"
}

// Stats 工作流状态汇总
type Stats struct {
	Total           int64   `json:"total"`
	Pending         int64   `json:"pending"`
	PartialApproval int64   `json:"partial_approval"`
	Approved        int64   `json:"approved"`
	Rejected        int64   `json:"rejected"`
	ApprovalRate    float64 `json:"approval_rate"`
	ActiveObservers int     `json:"active_observers"`
}
