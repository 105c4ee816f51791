package remediation

import (
	"context"
	"strings"
	"time"

	"backend/internal/common"
	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/registry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dispatcher 通知分发接口
// 实现必须是尽力而为的：任何投递失败只记录日志，不得回传到决策主路径
type Dispatcher interface {
	DispatchCreated(ctx context.Context, wf *Workflow)
	DispatchDecided(ctx context.Context, wf *Workflow, decision *Decision)
}

// LearningSink 学习遥测落地接口，只追加、尽力而为
type LearningSink interface {
	RecordOutcome(ctx context.Context, wf *Workflow)
}

// Service 审批协调服务（组合根）
// 编排注册表、存储、状态机、通知与遥测；是对外的唯一公共入口
type Service struct {
	store      *Store
	registry   *registry.Service
	processor  *Processor
	locks      *keyedMutex
	dispatcher Dispatcher
	publishers []EventPublisher
	learning   LearningSink
	pageSize   int
	logger     *zap.Logger
}

// ServiceOption 自定义配置
type ServiceOption func(*Service)

// WithDispatcher 注入通知分发器
func WithDispatcher(d Dispatcher) ServiceOption {
	return func(s *Service) { s.dispatcher = d }
}

// WithEventPublisher 追加事件发布方（可多次调用）
func WithEventPublisher(p EventPublisher) ServiceOption {
	return func(s *Service) {
		if p != nil {
			s.publishers = append(s.publishers, p)
		}
	}
}

// WithLearningSink 注入学习遥测落地
func WithLearningSink(sink LearningSink) ServiceOption {
	return func(s *Service) { s.learning = sink }
}

// WithPendingPageSize 设置待审批列表单页上限
func WithPendingPageSize(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// NewService 创建协调服务
func NewService(store *Store, reg *registry.Service, opts ...ServiceOption) *Service {
	svc := &Service{
		store:     store,
		registry:  reg,
		processor: NewProcessor(store),
		locks:     newKeyedMutex(),
		pageSize:  50,
		logger:    logger.Named("remediation"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// CreateInput 创建工作流输入
type CreateInput struct {
	RequestID      string
	OperatorID     string
	Title          string
	Description    string
	Actions        []Action
	RequiredLevel  int
	Urgency        string
	RiskAssessment string
}

// Create 创建审批工作流
// 资格快照在此刻一次性固化；没有任何活跃审批人满足 required_level 时
// 返回校验错误且不持久化任何数据
func (s *Service) Create(ctx context.Context, input *CreateInput) (*Workflow, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, common.NewBusinessError(common.CodeInvalidRequest, "标题不能为空")
	}
	if input.RequiredLevel < 1 {
		return nil, common.NewBusinessError(common.CodeInvalidRequest, "required_level 必须 >= 1")
	}
	if len(input.Actions) == 0 {
		return nil, common.NewBusinessError(common.CodeInvalidRequest, "至少需要一条纠正动作")
	}
	urgency := input.Urgency
	if urgency == "" {
		urgency = UrgencyMedium
	}
	if !ValidUrgency(urgency) {
		return nil, common.NewBusinessError(common.CodeInvalidRequest, "无效的紧急程度: "+input.Urgency)
	}

	// 至少要有一名活跃审批人有能力终结该工作流
	closers, err := s.registry.Eligible(ctx, input.RequiredLevel)
	if err != nil {
		return nil, err
	}
	if len(closers) == 0 {
		return nil, common.NewBusinessError(common.CodeInvalidRequest,
			"没有满足权限级别要求的活跃审批人")
	}

	// 快照包含全部活跃审批人：级别不足者的批准记为支持性批准，
	// 级别不足者的拒绝同样立即否决
	approvers, err := s.registry.Active(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := make([]EligibleApprover, 0, len(approvers))
	for _, a := range approvers {
		snapshot = append(snapshot, EligibleApprover{
			ApproverID:     a.ID,
			AuthorityLevel: a.AuthorityLevel,
		})
	}

	wf := &Workflow{
		ID:                uuid.New().String(),
		RequestID:         input.RequestID,
		OperatorID:        input.OperatorID,
		Title:             input.Title,
		Description:       input.Description,
		Actions:           input.Actions,
		RequiredLevel:     input.RequiredLevel,
		Urgency:           urgency,
		RiskAssessment:    input.RiskAssessment,
		Status:            StatusPending,
		EligibleApprovers: snapshot,
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}

	if err := s.store.Create(ctx, wf); err != nil {
		return nil, err
	}

	metrics.WorkflowsCreatedTotal.WithLabelValues(urgency).Inc()
	metrics.WorkflowsPendingGauge.Inc()

	s.publish(Event{Type: EventCreated, Workflow: wf})
	if s.dispatcher != nil {
		go s.dispatcher.DispatchCreated(context.WithoutCancel(ctx), wf)
	}

	s.logger.Info("工作流已创建",
		zap.String("workflowId", wf.ID),
		zap.String("requestId", wf.RequestID),
		zap.Int("requiredLevel", wf.RequiredLevel),
		zap.Int("eligibleApprovers", len(snapshot)),
	)

	return wf, nil
}

// Get 查询工作流
func (s *Service) Get(ctx context.Context, id string) (*Workflow, error) {
	return s.store.Get(ctx, id)
}

// DecideResult 决策返回值
type DecideResult struct {
	Workflow *Workflow `json:"workflow"`
	Decision *Decision `json:"decision"`
}

// Decide 提交一条审批决策
// 同一工作流的决策按到达顺序串行化，不同工作流互不阻塞；
// 锁只覆盖状态落库，事件推送、通知与学习遥测全部在锁外进行
func (s *Service) Decide(ctx context.Context, workflowID, approverID, outcome, comments string) (*DecideResult, error) {
	unlock := s.locks.Lock(workflowID)
	wf, decision, fromStatus, err := s.processor.Apply(ctx, workflowID, approverID, outcome, comments)
	unlock()
	if err != nil {
		return nil, err
	}

	s.publish(Event{Type: EventDecisionRecorded, Workflow: wf})
	// 重复的支持性批准不改变状态，不对外宣告状态变更
	if wf.Status != fromStatus {
		s.publish(Event{Type: EventStatusChanged, Workflow: wf})
	}

	bg := context.WithoutCancel(ctx)
	if s.dispatcher != nil {
		go s.dispatcher.DispatchDecided(bg, wf, decision)
	}
	if wf.Terminal() && s.learning != nil {
		go s.learning.RecordOutcome(bg, wf)
	}

	return &DecideResult{Workflow: wf, Decision: decision}, nil
}

// PendingFor 返回审批人可处理的未终态工作流，新建的在前
func (s *Service) PendingFor(ctx context.Context, approverID string) ([]*Workflow, error) {
	// 校验审批人存在，未知 ID 直接返回 NotFound
	if _, err := s.registry.Get(ctx, approverID); err != nil {
		return nil, err
	}
	return s.store.PendingFor(ctx, approverID, s.pageSize)
}

// Stats 工作流状态汇总
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Pending:         counts[StatusPending],
		PartialApproval: counts[StatusPartialApproval],
		Approved:        counts[StatusApproved],
		Rejected:        counts[StatusRejected],
	}
	stats.Total = stats.Pending + stats.PartialApproval + stats.Approved + stats.Rejected

	if decided := stats.Approved + stats.Rejected; decided > 0 {
		stats.ApprovalRate = float64(stats.Approved) / float64(decided)
	}
	for _, p := range s.publishers {
		stats.ActiveObservers += p.ActiveObservers()
	}
	return stats, nil
}

// publish 将事件推送到所有发布方，非阻塞
func (s *Service) publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	for _, p := range s.publishers {
		p.Publish(evt)
	}
}
