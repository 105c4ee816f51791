package approvals

import "backend/internal/remediation"

// ActionInput 单条纠正动作
type ActionInput struct {
	Text     string `json:"text" binding:"required"`
	Priority int    `json:"priority"`
}

// CreateWorkflowRequest 创建审批工作流请求
type CreateWorkflowRequest struct {
	RequestID      string        `json:"request_id"`
	OperatorID     string        `json:"operator_id"`
	Title          string        `json:"title" binding:"required"`
	Description    string        `json:"description"`
	Actions        []ActionInput `json:"actions" binding:"required,min=1"`
	RequiredLevel  int           `json:"required_level" binding:"required,min=1"`
	Urgency        string        `json:"urgency"`
	RiskAssessment string        `json:"risk_assessment"`
}

// ToInput 转换为服务层输入
func (r *CreateWorkflowRequest) ToInput() *remediation.CreateInput {
	actions := make([]remediation.Action, 0, len(r.Actions))
	for _, a := range r.Actions {
		actions = append(actions, remediation.Action{
			Text:     a.Text,
			Priority: a.Priority,
		})
	}
	return &remediation.CreateInput{
		RequestID:      r.RequestID,
		OperatorID:     r.OperatorID,
		Title:          r.Title,
		Description:    r.Description,
		Actions:        actions,
		RequiredLevel:  r.RequiredLevel,
		Urgency:        r.Urgency,
		RiskAssessment: r.RiskAssessment,
	}
}

// DecisionRequest 提交审批决策请求
type DecisionRequest struct {
	ApproverID string `json:"approver_id" binding:"required"`
	Outcome    string `json:"outcome" binding:"required,oneof=approved rejected"`
	Comments   string `json:"comments"`
}
