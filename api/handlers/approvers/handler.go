package approvers

import (
	"backend/internal/common"
	"backend/internal/registry"
	"backend/internal/remediation"

	"github.com/gin-gonic/gin"
)

// Handler 审批人 HTTP 处理器
type Handler struct {
	registry *registry.Service
	service  *remediation.Service
}

// NewHandler 创建处理器
func NewHandler(reg *registry.Service, service *remediation.Service) *Handler {
	return &Handler{
		registry: reg,
		service:  service,
	}
}

// List 返回全部审批人
// @Summary 审批人列表
// @Tags Approvers
// @Produce json
// @Router /api/v1/approvers [get]
func (h *Handler) List(c *gin.Context) {
	approvers, err := h.registry.List(c.Request.Context())
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, approvers)
}

// Pending 返回审批人可处理的未终态工作流
// @Summary 审批人待办列表
// @Tags Approvers
// @Produce json
// @Router /api/v1/approvers/{id}/pending [get]
func (h *Handler) Pending(c *gin.Context) {
	workflows, err := h.service.PendingFor(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	if workflows == nil {
		workflows = []*remediation.Workflow{}
	}
	common.ResponseSuccess(c, workflows)
}
