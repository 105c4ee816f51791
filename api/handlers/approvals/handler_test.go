package approvals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"backend/internal/common"
	"backend/internal/registry"
	"backend/internal/remediation"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var approverLevel4 = uuid.New().String()

func newTestRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&registry.Approver{},
		&remediation.Workflow{},
		&remediation.Decision{},
	))

	reg := registry.NewService(db)
	require.NoError(t, reg.Seed(context.Background(), []*registry.Approver{
		{ID: approverLevel4, Name: "平台负责人", AuthorityLevel: 4, Active: true},
	}))

	service := remediation.NewService(remediation.NewStore(db), reg)
	h := NewHandler(service)

	router := gin.New()
	router.POST("/workflows", h.Create)
	router.GET("/workflows/:id", h.Get)
	router.POST("/workflows/:id/decisions", h.Decide)
	router.GET("/stats", h.Stats)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, payload any) (*httptest.ResponseRecorder, common.APIResponse) {
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp common.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func validCreatePayload() map[string]any {
	return map[string]any{
		"request_id":     "req-http-1",
		"operator_id":    uuid.New().String(),
		"title":          "重启订单服务",
		"actions":        []map[string]any{{"text": "systemctl restart order-svc", "priority": 1}},
		"required_level": 3,
		"urgency":        "high",
	}
}

func TestCreateWorkflowEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w, resp := doJSON(t, router, http.MethodPost, "/workflows", validCreatePayload())
	require.Equal(t, http.StatusCreated, w.Code)
	require.True(t, resp.Success)

	wf := resp.Data.(map[string]any)
	require.NotEmpty(t, wf["id"])
	require.Equal(t, remediation.StatusPending, wf["status"])
}

func TestCreateWorkflowValidation(t *testing.T) {
	router := newTestRouter(t)

	// 缺少必填字段 / 缺少动作与级别
	cases := []map[string]any{
		{},
		{"title": "只有标题"},
	}
	for _, payload := range cases {
		w, resp := doJSON(t, router, http.MethodPost, "/workflows", payload)
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.False(t, resp.Success)
		require.Equal(t, common.CodeInvalidRequest, resp.Code)
	}

	// 绑定通过但业务校验失败：无人满足级别
	payload := validCreatePayload()
	payload["required_level"] = 9
	w, resp := doJSON(t, router, http.MethodPost, "/workflows", payload)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, common.CodeInvalidRequest, resp.Code)
}

func TestGetWorkflowNotFound(t *testing.T) {
	router := newTestRouter(t)

	w, resp := doJSON(t, router, http.MethodGet, "/workflows/"+uuid.New().String(), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, common.CodeNotFound, resp.Code)
}

func TestDecideEndpoint(t *testing.T) {
	router := newTestRouter(t)

	_, created := doJSON(t, router, http.MethodPost, "/workflows", validCreatePayload())
	workflowID := created.Data.(map[string]any)["id"].(string)

	// 不合法的 outcome 在绑定层被拒
	w, _ := doJSON(t, router, http.MethodPost, "/workflows/"+workflowID+"/decisions", map[string]any{
		"approver_id": approverLevel4,
		"outcome":     "maybe",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// 快照外的审批人被拒
	w, resp := doJSON(t, router, http.MethodPost, "/workflows/"+workflowID+"/decisions", map[string]any{
		"approver_id": uuid.New().String(),
		"outcome":     "approved",
	})
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, common.CodeForbidden, resp.Code)

	// 级别足够的批准使工作流终结
	w, resp = doJSON(t, router, http.MethodPost, "/workflows/"+workflowID+"/decisions", map[string]any{
		"approver_id": approverLevel4,
		"outcome":     "approved",
		"comments":    "同意执行",
	})
	require.Equal(t, http.StatusOK, w.Code)
	result := resp.Data.(map[string]any)
	wf := result["workflow"].(map[string]any)
	require.Equal(t, remediation.StatusApproved, wf["status"])

	// 终态后再决策返回冲突
	w, resp = doJSON(t, router, http.MethodPost, "/workflows/"+workflowID+"/decisions", map[string]any{
		"approver_id": approverLevel4,
		"outcome":     "rejected",
	})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, common.CodeConflict, resp.Code)
}

func TestStatsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	_, created := doJSON(t, router, http.MethodPost, "/workflows", validCreatePayload())
	workflowID := created.Data.(map[string]any)["id"].(string)
	doJSON(t, router, http.MethodPost, "/workflows/"+workflowID+"/decisions", map[string]any{
		"approver_id": approverLevel4,
		"outcome":     "rejected",
		"comments":    "风险过高",
	})

	w, resp := doJSON(t, router, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := resp.Data.(map[string]any)
	require.EqualValues(t, 1, stats["total"])
	require.EqualValues(t, 1, stats["rejected"])
	require.EqualValues(t, 0, stats["approval_rate"])
}
