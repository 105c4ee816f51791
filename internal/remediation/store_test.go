package remediation

import (
	"context"
	"errors"
	"testing"
	"time"

	"backend/internal/common"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newWorkflow(approvers ...EligibleApprover) *Workflow {
	return &Workflow{
		ID:                uuid.New().String(),
		RequestID:         "req-store",
		OperatorID:        uuid.New().String(),
		Title:             "清理磁盘空间",
		Actions:           []Action{{Text: "rm -rf /var/log/old", Priority: 2}},
		RequiredLevel:     2,
		Urgency:           UrgencyLow,
		Status:            StatusPending,
		EligibleApprovers: approvers,
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
}

func TestStoreGetNotFound(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)

	_, err := store.Get(context.Background(), uuid.New().String())
	require.True(t, common.IsCode(err, common.CodeNotFound))
}

func TestStoreRoundTripPreservesSnapshot(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	approverID := uuid.New().String()
	wf := newWorkflow(EligibleApprover{ApproverID: approverID, AuthorityLevel: 3})
	require.NoError(t, store.Create(ctx, wf))

	loaded, err := store.Get(ctx, wf.ID)
	require.NoError(t, err)
	require.Equal(t, wf.Title, loaded.Title)
	require.Len(t, loaded.Actions, 1)
	level, ok := loaded.SnapshotLevel(approverID)
	require.True(t, ok)
	require.Equal(t, 3, level)
}

func TestAppendDecisionSeqMonotonic(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	approverID := uuid.New().String()
	wf := newWorkflow(EligibleApprover{ApproverID: approverID, AuthorityLevel: 1})
	require.NoError(t, store.Create(ctx, wf))

	for i := 0; i < 3; i++ {
		d := &Decision{
			ID:         uuid.New().String(),
			ApproverID: approverID,
			Outcome:    OutcomeApproved,
			CreatedAt:  time.Now().UTC(),
		}
		require.NoError(t, store.AppendDecision(ctx, wf.ID, d, StatusPartialApproval))
		require.Equal(t, i+1, d.Seq)
	}

	loaded, err := store.Get(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Decisions, 3)
	for i, d := range loaded.Decisions {
		require.Equal(t, i+1, d.Seq)
	}
	require.Equal(t, StatusPartialApproval, loaded.Status)
	require.Nil(t, loaded.DecidedAt)
}

func TestAppendDecisionTerminalSetsDecidedAt(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	approverID := uuid.New().String()
	wf := newWorkflow(EligibleApprover{ApproverID: approverID, AuthorityLevel: 4})
	require.NoError(t, store.Create(ctx, wf))

	d := &Decision{
		ID:         uuid.New().String(),
		ApproverID: approverID,
		Outcome:    OutcomeRejected,
		Comments:   "影响面过大",
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.AppendDecision(ctx, wf.ID, d, StatusRejected))

	loaded, err := store.Get(ctx, wf.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, loaded.Status)
	require.NotNil(t, loaded.DecidedAt)
}

func TestPendingForLimit(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	approverID := uuid.New().String()
	for i := 0; i < 5; i++ {
		wf := newWorkflow(EligibleApprover{ApproverID: approverID, AuthorityLevel: 2})
		require.NoError(t, store.Create(ctx, wf))
	}
	// 无资格的工作流不可见
	other := newWorkflow(EligibleApprover{ApproverID: uuid.New().String(), AuthorityLevel: 2})
	require.NoError(t, store.Create(ctx, other))

	result, err := store.PendingFor(ctx, approverID, 3)
	require.NoError(t, err)
	require.Len(t, result, 3)

	result, err = store.PendingFor(ctx, approverID, 0)
	require.NoError(t, err)
	require.Len(t, result, 5)
}

func TestCountByStatus(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	for _, status := range []string{StatusPending, StatusPending, StatusApproved} {
		wf := newWorkflow()
		wf.Status = status
		require.NoError(t, store.Create(ctx, wf))
	}

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, counts[StatusPending])
	require.EqualValues(t, 1, counts[StatusApproved])
}

func TestRecordNotificationAttempt(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	wf := newWorkflow()
	require.NoError(t, store.Create(ctx, wf))

	require.NoError(t, store.RecordNotificationAttempt(ctx, wf.ID, errors.New("smtp 超时")))
	loaded, err := store.Get(ctx, wf.ID)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.NotificationAttempts)
	require.NotNil(t, loaded.LastNotifiedAt)
	require.Equal(t, "smtp 超时", loaded.LastNotificationError)

	// 成功投递后错误被清空，计数继续累加
	require.NoError(t, store.RecordNotificationAttempt(ctx, wf.ID, nil))
	loaded, err = store.Get(ctx, wf.ID)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.NotificationAttempts)
	require.Empty(t, loaded.LastNotificationError)
}
