package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/registry"
	"backend/internal/remediation"

	"github.com/Knetic/govaluate"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Enqueuer 异步投递队列，未配置时回退为进程内 goroutine
type Enqueuer interface {
	EnqueueDelivery(ctx context.Context, notificationID string) error
}

// Dispatcher 通知分发器
// 计算谁需要被告知什么，合成通知记录并交给投递渠道；
// 全程尽力而为，投递失败只记账，不影响决策主路径
type Dispatcher struct {
	db       *gorm.DB
	notifier *MultiNotifier
	registry *registry.Service
	store    *remediation.Store
	queue    Enqueuer
	channels []string
	rules    []*govaluate.EvaluableExpression
	logger   *zap.Logger
}

// DispatcherOption 自定义配置
type DispatcherOption func(*Dispatcher)

// WithEnqueuer 注入异步投递队列
func WithEnqueuer(q Enqueuer) DispatcherOption {
	return func(d *Dispatcher) { d.queue = q }
}

// WithChannels 设置启用的渠道
func WithChannels(channels []string) DispatcherOption {
	return func(d *Dispatcher) {
		if len(channels) > 0 {
			d.channels = channels
		}
	}
}

// WithChannelRules 设置渠道路由规则表达式
// 每条规则对 (channel, kind, urgency, required_level) 求值，
// 任一规则为 false 时跳过该渠道；解析失败的规则记日志后忽略
func WithChannelRules(exprs []string) DispatcherOption {
	return func(d *Dispatcher) {
		for _, raw := range exprs {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			expr, err := govaluate.NewEvaluableExpression(raw)
			if err != nil {
				d.logger.Warn("渠道路由规则解析失败", zap.String("rule", raw), zap.Error(err))
				continue
			}
			d.rules = append(d.rules, expr)
		}
	}
}

// NewDispatcher 创建通知分发器
func NewDispatcher(db *gorm.DB, notifier *MultiNotifier, reg *registry.Service, store *remediation.Store, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		db:       db,
		notifier: notifier,
		registry: reg,
		store:    store,
		channels: []string{ChannelWebSocket},
		logger:   logger.Named("dispatcher"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// DispatchCreated 工作流创建后通知快照内的每一位审批人
// 实现 remediation.Dispatcher
func (d *Dispatcher) DispatchCreated(ctx context.Context, wf *remediation.Workflow) {
	subject := fmt.Sprintf("【审批请求】%s", wf.Title)
	body := d.renderRequestBody(wf)
	data := d.buildData(wf, nil)

	var lastErr error
	for _, eligible := range wf.EligibleApprovers {
		if err := d.dispatchTo(ctx, wf, eligible.ApproverID, KindApprovalRequest, subject, body, data); err != nil {
			lastErr = err
		}
	}

	if err := d.store.RecordNotificationAttempt(ctx, wf.ID, lastErr); err != nil {
		d.logger.Warn("更新通知簿记失败", zap.String("workflowId", wf.ID), zap.Error(err))
	}
}

// DispatchDecided 决策后通报原始操作员与其余仍在快照内的审批人
// 未决的审批人由此得知事项可能已经了结
func (d *Dispatcher) DispatchDecided(ctx context.Context, wf *remediation.Workflow, decision *remediation.Decision) {
	subject := fmt.Sprintf("【审批进展】%s: %s", wf.Title, wf.Status)
	body := d.renderOutcomeBody(wf, decision)
	data := d.buildData(wf, decision)

	var lastErr error
	if wf.OperatorID != "" {
		if err := d.dispatchTo(ctx, wf, wf.OperatorID, KindOutcome, subject, body, data); err != nil {
			lastErr = err
		}
	}
	for _, eligible := range wf.EligibleApprovers {
		if eligible.ApproverID == decision.ApproverID {
			continue
		}
		if err := d.dispatchTo(ctx, wf, eligible.ApproverID, KindOutcome, subject, body, data); err != nil {
			lastErr = err
		}
	}

	if err := d.store.RecordNotificationAttempt(ctx, wf.ID, lastErr); err != nil {
		d.logger.Warn("更新通知簿记失败", zap.String("workflowId", wf.ID), zap.Error(err))
	}
}

// dispatchTo 为单个接收方在所有放行渠道上合成并投递通知
func (d *Dispatcher) dispatchTo(ctx context.Context, wf *remediation.Workflow, recipientID, kind, subject, body string, data map[string]any) error {
	var lastErr error
	for _, channel := range d.channels {
		if !d.channelAllowed(channel, kind, wf) {
			continue
		}

		n := &Notification{
			ID:             uuid.New().String(),
			WorkflowID:     wf.ID,
			ApproverID:     recipientID,
			Kind:           kind,
			Channel:        channel,
			Recipient:      d.resolveRecipient(ctx, channel, recipientID),
			Subject:        subject,
			Body:           body,
			Data:           data,
			DeliveryStatus: DeliveryQueued,
			CreatedAt:      time.Now().UTC(),
		}
		if err := d.db.WithContext(ctx).Create(n).Error; err != nil {
			d.logger.Warn("持久化通知记录失败",
				zap.String("workflowId", wf.ID),
				zap.String("channel", channel),
				zap.Error(err),
			)
			lastErr = err
			continue
		}

		if d.queue != nil {
			if err := d.queue.EnqueueDelivery(ctx, n.ID); err == nil {
				continue
			}
			d.logger.Warn("通知入队失败，回退进程内投递", zap.String("notificationId", n.ID))
		}
		go d.deliverAsync(n.ID)
	}
	return lastErr
}

func (d *Dispatcher) deliverAsync(notificationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := d.Deliver(ctx, notificationID); err != nil {
		d.logger.Warn("通知投递失败", zap.String("notificationId", notificationID), zap.Error(err))
	}
}

// Deliver 执行一次投递并回写 delivery_status
// 既是进程内回退路径，也是队列 worker 的处理入口
func (d *Dispatcher) Deliver(ctx context.Context, notificationID string) error {
	var n Notification
	if err := d.db.WithContext(ctx).Where("id = ?", notificationID).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("通知记录不存在: %s", notificationID)
		}
		return fmt.Errorf("加载通知记录失败: %w", err)
	}

	sendErr := d.notifier.Send(ctx, &n)

	updates := map[string]any{
		"updated_at": time.Now().UTC(),
	}
	if sendErr != nil {
		updates["delivery_status"] = DeliveryFailed
		updates["delivery_error"] = sendErr.Error()
		metrics.NotificationsTotal.WithLabelValues(n.Channel, DeliveryFailed).Inc()
	} else {
		updates["delivery_status"] = DeliveryDelivered
		updates["delivery_error"] = ""
		metrics.NotificationsTotal.WithLabelValues(n.Channel, DeliveryDelivered).Inc()
	}
	if err := d.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ?", notificationID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("回写投递状态失败: %w", err)
	}
	return sendErr
}

// channelAllowed 用路由规则判断渠道是否放行
func (d *Dispatcher) channelAllowed(channel, kind string, wf *remediation.Workflow) bool {
	if len(d.rules) == 0 {
		return true
	}
	params := map[string]any{
		"channel":        channel,
		"kind":           kind,
		"urgency":        wf.Urgency,
		"required_level": float64(wf.RequiredLevel),
	}
	for _, rule := range d.rules {
		result, err := rule.Evaluate(params)
		if err != nil {
			d.logger.Warn("渠道路由规则求值失败", zap.Error(err))
			continue
		}
		if pass, ok := result.(bool); ok && !pass {
			return false
		}
	}
	return true
}

// resolveRecipient 按渠道解析接收地址
func (d *Dispatcher) resolveRecipient(ctx context.Context, channel, recipientID string) string {
	switch channel {
	case ChannelEmail:
		approver, err := d.registry.Get(ctx, recipientID)
		if err != nil {
			return ""
		}
		return approver.Contact
	case ChannelWebSocket:
		return recipientID
	default:
		// webhook 使用配置的默认 URL
		return ""
	}
}

func (d *Dispatcher) renderRequestBody(wf *remediation.Workflow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "诊断系统提出了一组待授权的纠正动作。\n\n")
	fmt.Fprintf(&b, "标题: %s\n紧急程度: %s\n要求权限级别: %d\n", wf.Title, wf.Urgency, wf.RequiredLevel)
	if wf.RiskAssessment != "" {
		fmt.Fprintf(&b, "风险评估: %s\n", wf.RiskAssessment)
	}
	b.WriteString("\n建议动作:\n")
	for i, action := range wf.Actions {
		fmt.Fprintf(&b, "  %d. [P%d] %s\n", i+1, action.Priority, action.Text)
	}
	return b.String()
}

func (d *Dispatcher) renderOutcomeBody(wf *remediation.Workflow, decision *remediation.Decision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "工作流 %q 有新的决策。\n\n", wf.Title)
	fmt.Fprintf(&b, "决策人: %s\n结果: %s\n当前状态: %s\n", decision.ApproverID, decision.Outcome, wf.Status)
	if decision.Comments != "" {
		fmt.Fprintf(&b, "备注: %s\n", decision.Comments)
	}
	if wf.Terminal() {
		b.WriteString("\n该工作流已终结，不再接受决策。\n")
	}
	return b.String()
}

func (d *Dispatcher) buildData(wf *remediation.Workflow, decision *remediation.Decision) map[string]any {
	data := map[string]any{
		"workflow_id":    wf.ID,
		"request_id":     wf.RequestID,
		"title":          wf.Title,
		"status":         wf.Status,
		"urgency":        wf.Urgency,
		"required_level": wf.RequiredLevel,
		"created_at":     wf.CreatedAt.Format(time.RFC3339),
	}
	if decision != nil {
		data["decision"] = map[string]any{
			"approver_id": decision.ApproverID,
			"outcome":     decision.Outcome,
			"comments":    decision.Comments,
		}
	}
	return data
}
