package learning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"backend/internal/common"
	learningSvc "backend/internal/learning"
	"backend/internal/remediation"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&learningSvc.Record{},
		&remediation.Workflow{},
		&remediation.Decision{},
	))

	h := NewHandler(learningSvc.NewService(db, 5))
	router := gin.New()
	router.POST("/learning/records", h.CreateRecord)
	router.GET("/learning/aggregates", h.Aggregates)
	return router
}

func TestCreateRecordEndpoint(t *testing.T) {
	router := newTestRouter(t)

	payload, _ := json.Marshal(map[string]any{
		"workflow_id": uuid.New().String(),
		"record_type": "feedback",
		"feedback":    "动作列表缺少回滚步骤",
	})
	req := httptest.NewRequest(http.MethodPost, "/learning/records", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp common.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.Data.(map[string]any)["id"])
}

func TestCreateRecordRejectsUnknownType(t *testing.T) {
	router := newTestRouter(t)

	payload, _ := json.Marshal(map[string]any{
		"workflow_id": uuid.New().String(),
		"record_type": "telemetry",
	})
	req := httptest.NewRequest(http.MethodPost, "/learning/records", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAggregatesEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/learning/aggregates", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp common.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
}
