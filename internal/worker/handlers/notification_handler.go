package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"backend/internal/notification"
	"backend/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// NotificationHandler 通知投递任务处理器
type NotificationHandler struct {
	dispatcher *notification.Dispatcher
	logger     *zap.Logger
}

// NewNotificationHandler 创建通知处理器
func NewNotificationHandler(dispatcher *notification.Dispatcher, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// HandleDeliver 处理通知投递任务
func (h *NotificationHandler) HandleDeliver(ctx context.Context, t *asynq.Task) error {
	var payload tasks.DeliverNotificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("解析通知投递载荷失败: %w", err)
	}

	h.logger.Info("开始投递通知", zap.String("notificationId", payload.NotificationID))

	if err := h.dispatcher.Deliver(ctx, payload.NotificationID); err != nil {
		h.logger.Warn("通知投递失败",
			zap.String("notificationId", payload.NotificationID),
			zap.Error(err),
		)
		return err
	}
	return nil
}
