package learning

import (
	"context"
	"fmt"
	"time"

	"backend/internal/common"
	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/remediation"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service 学习遥测落地服务
// 追加式写入终态工作流的上下文与结果；失败只记日志，绝不阻塞决策路径
type Service struct {
	db     *gorm.DB
	topN   int
	logger *zap.Logger
}

// NewService 创建学习遥测服务
func NewService(db *gorm.DB, topN int) *Service {
	if topN <= 0 {
		topN = 5
	}
	return &Service{
		db:     db,
		topN:   topN,
		logger: logger.Named("learning"),
	}
}

// Record 写入一条学习记录
func (s *Service) Record(ctx context.Context, rec *Record) error {
	if rec.RecordType == "" {
		return common.NewBusinessError(common.CodeInvalidRequest, "record_type 不能为空")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.CreatedAt = time.Now().UTC()

	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		metrics.LearningRecordsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("写入学习记录失败: %w", err)
	}
	metrics.LearningRecordsTotal.WithLabelValues("ok").Inc()
	return nil
}

// RecordOutcome 记录终态工作流的结果快照
// 实现 remediation.LearningSink；尽力而为，错误只落日志
func (s *Service) RecordOutcome(ctx context.Context, wf *remediation.Workflow) {
	snapshot := map[string]any{
		"request_id":     wf.RequestID,
		"title":          wf.Title,
		"required_level": wf.RequiredLevel,
		"urgency":        wf.Urgency,
		"risk":           wf.RiskAssessment,
		"actions":        wf.Actions,
		"decisions":      len(wf.Decisions),
	}
	if wf.DecidedAt != nil {
		snapshot["time_to_decision_seconds"] = wf.DecidedAt.Sub(wf.CreatedAt).Seconds()
	}

	rec := &Record{
		ID:              uuid.New().String(),
		WorkflowID:      wf.ID,
		RecordType:      "outcome",
		DecisionOutcome: wf.Status,
		ContextSnapshot: snapshot,
	}
	if err := s.Record(ctx, rec); err != nil {
		s.logger.Warn("记录工作流结果失败",
			zap.String("workflowId", wf.ID),
			zap.Error(err),
		)
	}
}

// ApprovalRate 终态记录中批准占比
func (s *Service) ApprovalRate(ctx context.Context) (float64, error) {
	var total, approved int64
	if err := s.db.WithContext(ctx).Model(&Record{}).
		Where("record_type = ?", "outcome").
		Count(&total).Error; err != nil {
		return 0, fmt.Errorf("统计学习记录失败: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	if err := s.db.WithContext(ctx).Model(&Record{}).
		Where("record_type = ? AND decision_outcome = ?", "outcome", remediation.StatusApproved).
		Count(&approved).Error; err != nil {
		return 0, fmt.Errorf("统计批准记录失败: %w", err)
	}
	return float64(approved) / float64(total), nil
}

// AvgTimeToDecision 平均决策耗时（秒）
// 基于终态工作流的 created_at/decided_at 差值
func (s *Service) AvgTimeToDecision(ctx context.Context) (float64, error) {
	var workflows []*remediation.Workflow
	if err := s.db.WithContext(ctx).
		Where("status IN ? AND decided_at IS NOT NULL",
			[]string{remediation.StatusApproved, remediation.StatusRejected}).
		Find(&workflows).Error; err != nil {
		return 0, fmt.Errorf("查询终态工作流失败: %w", err)
	}
	if len(workflows) == 0 {
		return 0, nil
	}
	var sum float64
	for _, wf := range workflows {
		sum += wf.DecidedAt.Sub(wf.CreatedAt).Seconds()
	}
	return sum / float64(len(workflows)), nil
}

// CommonRejectionReasons 常见拒绝原因（按决策备注聚合取前 N）
func (s *Service) CommonRejectionReasons(ctx context.Context) ([]ReasonCount, error) {
	var rows []ReasonCount
	if err := s.db.WithContext(ctx).
		Model(&remediation.Decision{}).
		Select("comments as reason, count(*) as count").
		Where("outcome = ? AND comments <> ''", remediation.OutcomeRejected).
		Group("comments").
		Order("count DESC").
		Limit(s.topN).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("聚合拒绝原因失败: %w", err)
	}
	return rows, nil
}

// Aggregates 汇总全部聚合指标
func (s *Service) Aggregates(ctx context.Context) (*AggregateStats, error) {
	rate, err := s.ApprovalRate(ctx)
	if err != nil {
		return nil, err
	}
	avg, err := s.AvgTimeToDecision(ctx)
	if err != nil {
		return nil, err
	}
	reasons, err := s.CommonRejectionReasons(ctx)
	if err != nil {
		return nil, err
	}
	return &AggregateStats{
		ApprovalRate:         rate,
		AvgTimeToDecisionSec: avg,
		CommonRejectReasons:  reasons,
	}, nil
}
