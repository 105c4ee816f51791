package remediation

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"backend/internal/common"
	"backend/internal/registry"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&registry.Approver{}, &Workflow{}, &Decision{}))
	return db
}

// seedApprovers 写入 2 级与 4 级两名活跃审批人
func seedApprovers(t *testing.T, db *gorm.DB) (level2 string, level4 string) {
	reg := registry.NewService(db)
	level2 = uuid.New().String()
	level4 = uuid.New().String()
	require.NoError(t, reg.Seed(context.Background(), []*registry.Approver{
		{ID: level2, Name: "值班工程师", Contact: "l2@example.com", AuthorityLevel: 2, Active: true},
		{ID: level4, Name: "平台总监", Contact: "l4@example.com", AuthorityLevel: 4, Active: true},
	}))
	return level2, level4
}

func newTestService(t *testing.T, db *gorm.DB, opts ...ServiceOption) *Service {
	return NewService(NewStore(db), registry.NewService(db), opts...)
}

func validInput() *CreateInput {
	return &CreateInput{
		RequestID:     "req-1",
		OperatorID:    uuid.New().String(),
		Title:         "重启支付服务",
		Actions:       []Action{{Text: "重启 payment-api", Priority: 1}},
		RequiredLevel: 3,
		Urgency:       UrgencyHigh,
	}
}

func TestCreateSnapshotsActiveApprovers(t *testing.T) {
	db := openTestDB(t)
	level2, level4 := seedApprovers(t, db)
	svc := newTestService(t, db)

	wf, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	require.Equal(t, StatusPending, wf.Status)

	// 全部活跃审批人入围，级别固化在快照里
	require.Len(t, wf.EligibleApprovers, 2)
	l2, ok := wf.SnapshotLevel(level2)
	require.True(t, ok)
	require.Equal(t, 2, l2)
	l4, ok := wf.SnapshotLevel(level4)
	require.True(t, ok)
	require.Equal(t, 4, l4)
}

func TestCreateRejectsWhenNoApproverMeetsLevel(t *testing.T) {
	db := openTestDB(t)
	seedApprovers(t, db)
	svc := newTestService(t, db)

	input := validInput()
	input.RequiredLevel = 5

	_, err := svc.Create(context.Background(), input)
	require.Error(t, err)
	require.True(t, common.IsCode(err, common.CodeInvalidRequest))

	// 校验失败时不得持久化任何数据
	var count int64
	require.NoError(t, db.Model(&Workflow{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCreateValidation(t *testing.T) {
	db := openTestDB(t)
	seedApprovers(t, db)
	svc := newTestService(t, db)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"空标题", func(in *CreateInput) { in.Title = "  " }},
		{"无动作", func(in *CreateInput) { in.Actions = nil }},
		{"非法级别", func(in *CreateInput) { in.RequiredLevel = 0 }},
		{"非法紧急程度", func(in *CreateInput) { in.Urgency = "critical" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validInput()
			tc.mutate(input)
			_, err := svc.Create(ctx, input)
			require.True(t, common.IsCode(err, common.CodeInvalidRequest))
		})
	}
}

func TestDecidePartialThenFinalApproval(t *testing.T) {
	db := openTestDB(t)
	level2, level4 := seedApprovers(t, db)
	svc := newTestService(t, db)
	ctx := context.Background()

	wf, err := svc.Create(ctx, validInput()) // required_level=3
	require.NoError(t, err)

	// 2 级批准不足以终结，只记为支持性批准
	res, err := svc.Decide(ctx, wf.ID, level2, OutcomeApproved, "建议执行")
	require.NoError(t, err)
	require.Equal(t, StatusPartialApproval, res.Workflow.Status)
	require.Equal(t, 1, res.Decision.Seq)
	require.Nil(t, res.Workflow.DecidedAt)

	// 4 级批准终结工作流
	res, err = svc.Decide(ctx, wf.ID, level4, OutcomeApproved, "同意")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, res.Workflow.Status)
	require.Equal(t, 2, res.Decision.Seq)
	require.NotNil(t, res.Workflow.DecidedAt)
	require.Len(t, res.Workflow.Decisions, 2)
}

func TestRepeatSupportingApprovalEmitsNoStatusChange(t *testing.T) {
	db := openTestDB(t)
	level2, _ := seedApprovers(t, db)
	bus := NewEventBus(16)
	svc := newTestService(t, db, WithEventPublisher(bus))
	ctx := context.Background()

	ch, cancel := bus.Subscribe()
	defer cancel()

	wf, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	// 第一次支持性批准 pending -> partial_approval，第二次状态原地不动
	_, err = svc.Decide(ctx, wf.ID, level2, OutcomeApproved, "支持")
	require.NoError(t, err)
	_, err = svc.Decide(ctx, wf.ID, level2, OutcomeApproved, "再次支持")
	require.NoError(t, err)

	counts := map[string]int{}
drain:
	for {
		select {
		case evt := <-ch:
			counts[evt.Type]++
		default:
			break drain
		}
	}

	// 每条决策都宣告 decision_recorded，状态变更只宣告一次
	require.Equal(t, 1, counts[EventCreated])
	require.Equal(t, 2, counts[EventDecisionRecorded])
	require.Equal(t, 1, counts[EventStatusChanged])
}

func TestDecideRejectionDominates(t *testing.T) {
	db := openTestDB(t)
	level2, level4 := seedApprovers(t, db)
	svc := newTestService(t, db)
	ctx := context.Background()

	wf, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	// 支持性批准之后的拒绝依然立即否决
	_, err = svc.Decide(ctx, wf.ID, level2, OutcomeApproved, "")
	require.NoError(t, err)
	res, err := svc.Decide(ctx, wf.ID, level4, OutcomeRejected, "风险过高")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, res.Workflow.Status)

	// 终态后任何决策都是冲突，且不追加记录
	_, err = svc.Decide(ctx, wf.ID, level2, OutcomeApproved, "")
	require.True(t, common.IsCode(err, common.CodeConflict))

	var count int64
	require.NoError(t, db.Model(&Decision{}).Where("workflow_id = ?", wf.ID).Count(&count).Error)
	require.EqualValues(t, 2, count)
}

func TestDecideForbiddenForUnknownApprover(t *testing.T) {
	db := openTestDB(t)
	seedApprovers(t, db)
	svc := newTestService(t, db)
	ctx := context.Background()

	wf, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	_, err = svc.Decide(ctx, wf.ID, uuid.New().String(), OutcomeApproved, "")
	require.True(t, common.IsCode(err, common.CodeForbidden))
}

func TestSnapshotImmuneToRegistryChanges(t *testing.T) {
	db := openTestDB(t)
	seedApprovers(t, db)
	svc := newTestService(t, db)
	reg := registry.NewService(db)
	ctx := context.Background()

	wf, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	// 创建后注册的高权限审批人不在快照内，无权决策
	late := uuid.New().String()
	require.NoError(t, reg.Seed(ctx, []*registry.Approver{
		{ID: late, Name: "后来者", AuthorityLevel: 5, Active: true},
	}))

	_, err = svc.Decide(ctx, wf.ID, late, OutcomeApproved, "")
	require.True(t, common.IsCode(err, common.CodeForbidden))
}

func TestDecideInvalidOutcome(t *testing.T) {
	db := openTestDB(t)
	_, level4 := seedApprovers(t, db)
	svc := newTestService(t, db)
	ctx := context.Background()

	wf, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	_, err = svc.Decide(ctx, wf.ID, level4, "maybe", "")
	require.True(t, common.IsCode(err, common.CodeInvalidRequest))
}

func TestConcurrentDecisionsAreSerialized(t *testing.T) {
	db := openTestDB(t)
	_, level4 := seedApprovers(t, db)
	svc := newTestService(t, db)
	ctx := context.Background()

	wf, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Decide(ctx, wf.ID, level4, OutcomeApproved, "")
		}(i)
	}
	wg.Wait()

	// 恰好一条决策成功进入终态，其余全部因终态冲突被拒
	var success, conflict int
	for _, err := range errs {
		switch {
		case err == nil:
			success++
		case common.IsCode(err, common.CodeConflict):
			conflict++
		default:
			t.Fatalf("意外错误: %v", err)
		}
	}
	require.Equal(t, 1, success)
	require.Equal(t, n-1, conflict)

	final, err := svc.Get(ctx, wf.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, final.Status)
	require.Len(t, final.Decisions, 1)
}

func TestPendingForNewestFirst(t *testing.T) {
	db := openTestDB(t)
	level2, level4 := seedApprovers(t, db)
	svc := newTestService(t, db)
	ctx := context.Background()

	first, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	second, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	pending, err := svc.PendingFor(ctx, level2)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	// 终态工作流从待办中消失
	_, err = svc.Decide(ctx, first.ID, level4, OutcomeRejected, "")
	require.NoError(t, err)
	pending, err = svc.PendingFor(ctx, level2)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, second.ID, pending[0].ID)

	// 未知审批人返回 NotFound
	_, err = svc.PendingFor(ctx, uuid.New().String())
	require.True(t, common.IsCode(err, common.CodeNotFound))
}

func TestStatsTotalsAddUp(t *testing.T) {
	db := openTestDB(t)
	level2, level4 := seedApprovers(t, db)
	svc := newTestService(t, db)
	ctx := context.Background()

	wfA, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	wfB, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	wfC, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	_, err = svc.Decide(ctx, wfA.ID, level4, OutcomeApproved, "")
	require.NoError(t, err)
	_, err = svc.Decide(ctx, wfB.ID, level4, OutcomeRejected, "不安全")
	require.NoError(t, err)
	_, err = svc.Decide(ctx, wfC.ID, level2, OutcomeApproved, "")
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, stats.Total)
	require.EqualValues(t, 1, stats.Approved)
	require.EqualValues(t, 1, stats.Rejected)
	require.EqualValues(t, 1, stats.PartialApproval)
	require.Equal(t, stats.Total, stats.Pending+stats.PartialApproval+stats.Approved+stats.Rejected)
	require.InDelta(t, 0.5, stats.ApprovalRate, 1e-9)
}
