package learning

import (
	"backend/internal/common"
	learningSvc "backend/internal/learning"

	"github.com/gin-gonic/gin"
)

// CreateRecordRequest 写入学习记录请求
type CreateRecordRequest struct {
	WorkflowID      string         `json:"workflow_id" binding:"required"`
	RecordType      string         `json:"record_type" binding:"required,oneof=outcome feedback"`
	DecisionOutcome string         `json:"decision_outcome"`
	Context         map[string]any `json:"context"`
	Feedback        string         `json:"feedback"`
}

// Handler 学习遥测 HTTP 处理器
type Handler struct {
	service *learningSvc.Service
}

// NewHandler 创建处理器
func NewHandler(service *learningSvc.Service) *Handler {
	return &Handler{service: service}
}

// CreateRecord 写入一条学习记录
// @Summary 记录审批结果或操作员反馈
// @Tags Learning
// @Accept json
// @Produce json
// @Router /api/v1/learning/records [post]
func (h *Handler) CreateRecord(c *gin.Context) {
	var req CreateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数无效: "+err.Error())
		return
	}

	rec := &learningSvc.Record{
		WorkflowID:      req.WorkflowID,
		RecordType:      req.RecordType,
		DecisionOutcome: req.DecisionOutcome,
		ContextSnapshot: req.Context,
		Feedback:        req.Feedback,
	}
	if err := h.service.Record(c.Request.Context(), rec); err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseCreated(c, rec)
}

// Aggregates 聚合指标：批准率、平均决策耗时、常见拒绝原因
// @Summary 学习遥测聚合指标
// @Tags Learning
// @Produce json
// @Router /api/v1/learning/aggregates [get]
func (h *Handler) Aggregates(c *gin.Context) {
	stats, err := h.service.Aggregates(c.Request.Context())
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, stats)
}
