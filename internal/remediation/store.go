package remediation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend/internal/common"

	"gorm.io/gorm"
)

// Store 工作流存储
// 只提供 创建/查询/追加决策 三个原语，不含任何业务规则，
// 状态转移的合法性由 Processor 负责
type Store struct {
	db *gorm.DB
}

// NewStore 创建工作流存储
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create 持久化新工作流
func (s *Store) Create(ctx context.Context, wf *Workflow) error {
	if err := s.db.WithContext(ctx).Create(wf).Error; err != nil {
		return fmt.Errorf("创建工作流失败: %w", err)
	}
	return nil
}

// Get 按 ID 加载工作流，决策按到达顺序排列
func (s *Store) Get(ctx context.Context, id string) (*Workflow, error) {
	var wf Workflow
	if err := s.db.WithContext(ctx).
		Preload("Decisions", func(db *gorm.DB) *gorm.DB {
			return db.Order("seq ASC")
		}).
		Where("id = ?", id).
		First(&wf).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NewBusinessError(common.CodeNotFound, "工作流不存在")
		}
		return nil, fmt.Errorf("查询工作流失败: %w", err)
	}
	return &wf, nil
}

// AppendDecision 追加决策并更新状态，是唯一的状态变更入口
// 仅由 Processor 调用；决策与状态变更在同一事务内落库
func (s *Store) AppendDecision(ctx context.Context, id string, decision *Decision, newStatus string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seq int64
		if err := tx.Model(&Decision{}).
			Where("workflow_id = ?", id).
			Count(&seq).Error; err != nil {
			return fmt.Errorf("统计决策序号失败: %w", err)
		}
		decision.Seq = int(seq) + 1
		decision.WorkflowID = id

		if err := tx.Create(decision).Error; err != nil {
			return fmt.Errorf("追加决策失败: %w", err)
		}

		updates := map[string]any{
			"status":     newStatus,
			"updated_at": time.Now().UTC(),
		}
		if IsTerminal(newStatus) {
			now := time.Now().UTC()
			updates["decided_at"] = &now
		}

		if err := tx.Model(&Workflow{}).
			Where("id = ?", id).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("更新工作流状态失败: %w", err)
		}
		return nil
	})
}

// PendingFor 返回审批人可处理的未终态工作流，新建的在前
// 资格快照存储为 JSON，过滤在应用层完成
func (s *Store) PendingFor(ctx context.Context, approverID string, limit int) ([]*Workflow, error) {
	var open []*Workflow
	if err := s.db.WithContext(ctx).
		Preload("Decisions", func(db *gorm.DB) *gorm.DB {
			return db.Order("seq ASC")
		}).
		Where("status IN ?", []string{StatusPending, StatusPartialApproval}).
		Order("created_at DESC").
		Find(&open).Error; err != nil {
		return nil, fmt.Errorf("查询待审批工作流失败: %w", err)
	}

	result := make([]*Workflow, 0, len(open))
	for _, wf := range open {
		if !wf.IsEligible(approverID) {
			continue
		}
		result = append(result, wf)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// CountByStatus 按状态统计工作流数量
func (s *Store) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	if err := s.db.WithContext(ctx).
		Model(&Workflow{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("统计工作流状态失败: %w", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// RecordNotificationAttempt 更新通知投递簿记
func (s *Store) RecordNotificationAttempt(ctx context.Context, id string, lastErr error) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"notification_attempts": gorm.Expr("notification_attempts + 1"),
		"last_notified_at":      &now,
		"updated_at":            now,
	}
	if lastErr != nil {
		updates["last_notification_error"] = lastErr.Error()
	} else {
		updates["last_notification_error"] = ""
	}
	if err := s.db.WithContext(ctx).Model(&Workflow{}).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("更新通知状态失败: %w", err)
	}
	return nil
}
