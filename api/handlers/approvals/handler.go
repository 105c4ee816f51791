package approvals

import (
	"backend/internal/common"
	"backend/internal/remediation"

	"github.com/gin-gonic/gin"
)

// Handler 审批工作流 HTTP 处理器
type Handler struct {
	service *remediation.Service
}

// NewHandler 创建处理器
func NewHandler(service *remediation.Service) *Handler {
	return &Handler{service: service}
}

// Create 创建审批工作流
// @Summary 提交纠正动作等待审批
// @Tags Approvals
// @Accept json
// @Produce json
// @Router /api/v1/workflows [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数无效: "+err.Error())
		return
	}

	wf, err := h.service.Create(c.Request.Context(), req.ToInput())
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseCreated(c, wf)
}

// Get 查询工作流详情（含全部决策历史）
// @Summary 查询审批工作流
// @Tags Approvals
// @Produce json
// @Router /api/v1/workflows/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	wf, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, wf)
}

// Decide 提交一条审批决策
// @Summary 审批人对工作流作出决策
// @Tags Approvals
// @Accept json
// @Produce json
// @Router /api/v1/workflows/{id}/decisions [post]
func (h *Handler) Decide(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数无效: "+err.Error())
		return
	}

	result, err := h.service.Decide(
		c.Request.Context(),
		c.Param("id"),
		req.ApproverID,
		req.Outcome,
		req.Comments,
	)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, result)
}

// Stats 工作流状态汇总
// @Summary 各状态工作流数量与批准率
// @Tags Approvals
// @Produce json
// @Router /api/v1/stats [get]
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, stats)
}
