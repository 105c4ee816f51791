package remediation

import (
	"context"
	"fmt"
	"time"

	"backend/internal/common"
	"backend/internal/logger"
	"backend/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Processor 决策状态机
// 状态转移: pending -> {partial_approval, approved, rejected}
//
//	partial_approval -> {approved, rejected}
//	approved / rejected 为终态，无出边
type Processor struct {
	store  *Store
	logger *zap.Logger
}

// NewProcessor 创建决策处理器
func NewProcessor(store *Store) *Processor {
	return &Processor{
		store:  store,
		logger: logger.Named("processor"),
	}
}

// Apply 校验并落地一条决策，返回更新后的工作流、决策记录与决策前的状态
// 调用方必须已持有该工作流 ID 的串行锁
func (p *Processor) Apply(ctx context.Context, workflowID, approverID, outcome, comments string) (*Workflow, *Decision, string, error) {
	wf, err := p.store.Get(ctx, workflowID)
	if err != nil {
		return nil, nil, "", err
	}
	fromStatus := wf.Status

	// 终态工作流拒绝一切后续决策，且不产生任何变更
	if wf.Terminal() {
		metrics.DecisionRejectedTotal.WithLabelValues("terminal").Inc()
		return nil, nil, "", common.NewBusinessError(common.CodeConflict,
			fmt.Sprintf("工作流已终态(%s)，不再接受决策", wf.Status))
	}

	// 资格判定只看创建时刻的快照；创建后加入或晋升的审批人无权决策
	level, eligible := wf.SnapshotLevel(approverID)
	if !eligible {
		metrics.DecisionRejectedTotal.WithLabelValues("forbidden").Inc()
		return nil, nil, "", common.NewBusinessError(common.CodeForbidden, "审批人不在资格快照内")
	}

	if outcome != OutcomeApproved && outcome != OutcomeRejected {
		return nil, nil, "", common.NewBusinessError(common.CodeInvalidRequest,
			fmt.Sprintf("无效的决策结果: %s", outcome))
	}

	newStatus := p.nextStatus(wf, outcome, level)

	decision := &Decision{
		ID:         uuid.New().String(),
		WorkflowID: wf.ID,
		ApproverID: approverID,
		Outcome:    outcome,
		Comments:   comments,
		CreatedAt:  time.Now().UTC(),
	}

	// 决策无条件追加，即便不改变状态也保留完整审计记录
	if err := p.store.AppendDecision(ctx, wf.ID, decision, newStatus); err != nil {
		return nil, nil, "", err
	}

	metrics.DecisionsTotal.WithLabelValues(outcome, newStatus).Inc()
	if IsTerminal(newStatus) && !IsTerminal(fromStatus) {
		metrics.WorkflowsPendingGauge.Dec()
		metrics.TimeToDecisionSeconds.Observe(time.Since(wf.CreatedAt).Seconds())
	}

	p.logger.Info("决策已受理",
		zap.String("workflowId", wf.ID),
		zap.String("approverId", approverID),
		zap.String("outcome", outcome),
		zap.String("fromStatus", fromStatus),
		zap.String("toStatus", newStatus),
	)

	updated, err := p.store.Get(ctx, wf.ID)
	if err != nil {
		return nil, nil, "", err
	}
	return updated, decision, fromStatus, nil
}

// nextStatus 计算新状态
// 拒绝优先: 任何快照内审批人的拒绝立即终结工作流，不做平均或法定人数统计；
// 批准时比较快照内固化的权限级别与 required_level，
// 级别不足只记为支持性批准(partial_approval)，工作流继续等待更高权限决策
func (p *Processor) nextStatus(wf *Workflow, outcome string, level int) string {
	if outcome == OutcomeRejected {
		return StatusRejected
	}
	if level >= wf.RequiredLevel {
		return StatusApproved
	}
	return StatusPartialApproval
}
