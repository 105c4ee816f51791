package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backend/internal/config"
	"backend/internal/remediation"
	"backend/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Client 异步任务入队客户端
// 实现 notification.Enqueuer；Redis 关闭时不创建，调用方回退进程内执行
type Client struct {
	client *asynq.Client
	logger *zap.Logger
}

// NewClient 创建入队客户端
func NewClient(redisCfg config.RedisConfig, logger *zap.Logger) *Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", redisCfg.Host, redisCfg.Port),
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	return &Client{
		client: client,
		logger: logger,
	}
}

// EnqueueDelivery 将通知投递任务入队
func (c *Client) EnqueueDelivery(ctx context.Context, notificationID string) error {
	payload, err := json.Marshal(tasks.DeliverNotificationPayload{NotificationID: notificationID})
	if err != nil {
		return fmt.Errorf("序列化通知投递载荷失败: %w", err)
	}
	task := asynq.NewTask(tasks.TypeDeliverNotification, payload)
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue("notify"),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("通知投递任务入队失败: %w", err)
	}
	c.logger.Debug("通知投递任务已入队",
		zap.String("taskId", info.ID),
		zap.String("notificationId", notificationID),
	)
	return nil
}

// EnqueueLearning 将学习记录任务入队
func (c *Client) EnqueueLearning(ctx context.Context, workflowID string) error {
	payload, err := json.Marshal(tasks.RecordLearningPayload{WorkflowID: workflowID})
	if err != nil {
		return fmt.Errorf("序列化学习记录载荷失败: %w", err)
	}
	task := asynq.NewTask(tasks.TypeRecordLearning, payload)
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue("learning"),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
	)
	if err != nil {
		return fmt.Errorf("学习记录任务入队失败: %w", err)
	}
	c.logger.Debug("学习记录任务已入队",
		zap.String("taskId", info.ID),
		zap.String("workflowId", workflowID),
	)
	return nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	return c.client.Close()
}

// QueuedLearningSink 把学习记录改走任务队列的适配器
// 入队失败时回退为同步执行，保证记录不丢
type QueuedLearningSink struct {
	client   *Client
	fallback remediation.LearningSink
	logger   *zap.Logger
}

// NewQueuedLearningSink 创建学习队列适配器
func NewQueuedLearningSink(client *Client, fallback remediation.LearningSink, logger *zap.Logger) *QueuedLearningSink {
	return &QueuedLearningSink{
		client:   client,
		fallback: fallback,
		logger:   logger,
	}
}

// RecordOutcome 实现 remediation.LearningSink
func (s *QueuedLearningSink) RecordOutcome(ctx context.Context, wf *remediation.Workflow) {
	if s.client != nil {
		if err := s.client.EnqueueLearning(ctx, wf.ID); err == nil {
			return
		}
		s.logger.Warn("学习记录入队失败，回退同步执行", zap.String("workflowId", wf.ID))
	}
	s.fallback.RecordOutcome(ctx, wf)
}
