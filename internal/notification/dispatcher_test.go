package notification

import (
	"context"
	"fmt"
	"testing"
	"time"

	"backend/internal/registry"
	"backend/internal/remediation"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openDispatcherDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&registry.Approver{},
		&remediation.Workflow{},
		&remediation.Decision{},
		&Notification{},
	))
	return db
}

func newDispatcherFixture(t *testing.T, db *gorm.DB, opts ...DispatcherOption) (*Dispatcher, *remediation.Store) {
	hub := NewWebSocketHub(WithKeepAliveInterval(0))
	notifier := NewMultiNotifier(nil, nil, hub)
	store := remediation.NewStore(db)
	d := NewDispatcher(db, notifier, registry.NewService(db), store, opts...)
	return d, store
}

func persistedWorkflow(t *testing.T, store *remediation.Store, approverIDs ...string) *remediation.Workflow {
	snapshot := make([]remediation.EligibleApprover, 0, len(approverIDs))
	for i, id := range approverIDs {
		snapshot = append(snapshot, remediation.EligibleApprover{ApproverID: id, AuthorityLevel: i + 2})
	}
	wf := &remediation.Workflow{
		ID:                uuid.New().String(),
		RequestID:         "req-d",
		OperatorID:        uuid.New().String(),
		Title:             "回滚最近一次发布",
		Actions:           []remediation.Action{{Text: "rollback release-42", Priority: 1}},
		RequiredLevel:     3,
		Urgency:           remediation.UrgencyHigh,
		Status:            remediation.StatusPending,
		EligibleApprovers: snapshot,
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	require.NoError(t, store.Create(context.Background(), wf))
	return wf
}

func TestDispatchCreatedPersistsNotificationPerApprover(t *testing.T) {
	db := openDispatcherDB(t)
	d, store := newDispatcherFixture(t, db)

	a1, a2 := uuid.New().String(), uuid.New().String()
	wf := persistedWorkflow(t, store, a1, a2)

	d.DispatchCreated(context.Background(), wf)

	var rows []Notification
	require.NoError(t, db.Where("workflow_id = ?", wf.ID).Find(&rows).Error)
	require.Len(t, rows, 2)
	for _, n := range rows {
		require.Equal(t, KindApprovalRequest, n.Kind)
		require.Equal(t, ChannelWebSocket, n.Channel)
		require.Contains(t, n.Body, "rollback release-42")
		require.Contains(t, []string{a1, a2}, n.ApproverID)
	}

	// 通知簿记已更新
	loaded, err := store.Get(context.Background(), wf.ID)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.NotificationAttempts)
	require.NotNil(t, loaded.LastNotifiedAt)

	// 投递异步完成：离线缓存接收成功后状态回写为 delivered
	require.Eventually(t, func() bool {
		var delivered int64
		require.NoError(t, db.Model(&Notification{}).
			Where("workflow_id = ? AND delivery_status = ?", wf.ID, DeliveryDelivered).
			Count(&delivered).Error)
		return delivered == 2
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDispatchDecidedNotifiesOperatorAndRemaining(t *testing.T) {
	db := openDispatcherDB(t)
	d, store := newDispatcherFixture(t, db)

	decider, other := uuid.New().String(), uuid.New().String()
	wf := persistedWorkflow(t, store, decider, other)
	wf.Status = remediation.StatusApproved

	decision := &remediation.Decision{
		ID:         uuid.New().String(),
		WorkflowID: wf.ID,
		ApproverID: decider,
		Outcome:    remediation.OutcomeApproved,
		Seq:        1,
	}
	d.DispatchDecided(context.Background(), wf, decision)

	var rows []Notification
	require.NoError(t, db.Where("workflow_id = ?", wf.ID).Find(&rows).Error)
	// 操作员 + 其余审批人，决策者本人不通知
	require.Len(t, rows, 2)
	recipients := []string{rows[0].ApproverID, rows[1].ApproverID}
	require.Contains(t, recipients, wf.OperatorID)
	require.Contains(t, recipients, other)
	require.NotContains(t, recipients, decider)
	for _, n := range rows {
		require.Equal(t, KindOutcome, n.Kind)
	}
}

func TestChannelRulesFilterChannels(t *testing.T) {
	db := openDispatcherDB(t)
	d, store := newDispatcherFixture(t, db,
		WithChannels([]string{ChannelWebSocket, ChannelEmail}),
		WithChannelRules([]string{`channel != "email" || urgency == "low"`}),
	)

	wf := persistedWorkflow(t, store, uuid.New().String())
	d.DispatchCreated(context.Background(), wf) // urgency=high，email 被规则拦下

	var rows []Notification
	require.NoError(t, db.Where("workflow_id = ?", wf.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, ChannelWebSocket, rows[0].Channel)
}

func TestChannelRulesIgnoreInvalidExpressions(t *testing.T) {
	db := openDispatcherDB(t)
	d, store := newDispatcherFixture(t, db,
		WithChannelRules([]string{"((", ""}),
	)

	wf := persistedWorkflow(t, store, uuid.New().String())
	d.DispatchCreated(context.Background(), wf)

	var count int64
	require.NoError(t, db.Model(&Notification{}).Where("workflow_id = ?", wf.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestDeliverUnknownNotification(t *testing.T) {
	db := openDispatcherDB(t)
	d, _ := newDispatcherFixture(t, db)
	require.Error(t, d.Deliver(context.Background(), uuid.New().String()))
}

func TestDeliverUnconfiguredChannelMarksFailed(t *testing.T) {
	db := openDispatcherDB(t)
	d, _ := newDispatcherFixture(t, db)

	n := &Notification{
		ID:             uuid.New().String(),
		WorkflowID:     uuid.New().String(),
		ApproverID:     uuid.New().String(),
		Kind:           KindApprovalRequest,
		Channel:        ChannelWebhook, // 未配置
		DeliveryStatus: DeliveryQueued,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, db.Create(n).Error)

	require.Error(t, d.Deliver(context.Background(), n.ID))

	var loaded Notification
	require.NoError(t, db.Where("id = ?", n.ID).First(&loaded).Error)
	require.Equal(t, DeliveryFailed, loaded.DeliveryStatus)
	require.NotEmpty(t, loaded.DeliveryError)
}
