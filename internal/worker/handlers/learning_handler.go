package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"backend/internal/remediation"
	"backend/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// LearningHandler 学习记录任务处理器
// 终态工作流按 ID 重新加载，避免队列里传一整份快照
type LearningHandler struct {
	store  *remediation.Store
	sink   remediation.LearningSink
	logger *zap.Logger
}

// NewLearningHandler 创建学习处理器
func NewLearningHandler(store *remediation.Store, sink remediation.LearningSink, logger *zap.Logger) *LearningHandler {
	return &LearningHandler{
		store:  store,
		sink:   sink,
		logger: logger,
	}
}

// HandleRecordOutcome 处理学习记录任务
func (h *LearningHandler) HandleRecordOutcome(ctx context.Context, t *asynq.Task) error {
	var payload tasks.RecordLearningPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("解析学习记录载荷失败: %w", err)
	}

	wf, err := h.store.Get(ctx, payload.WorkflowID)
	if err != nil {
		return fmt.Errorf("加载工作流失败: %w", err)
	}
	if !wf.Terminal() {
		// 任务落后于另一条决策路径时直接放弃，不重试
		h.logger.Debug("工作流尚未终结，跳过学习记录", zap.String("workflowId", wf.ID))
		return nil
	}

	h.sink.RecordOutcome(ctx, wf)
	return nil
}
