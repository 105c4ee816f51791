package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有 API 路由
func RegisterRoutes(router *gin.Engine, handlers *Handlers) {
	// 主 API 组（向后兼容）
	api := router.Group("/api")
	registerAPIRoutes(api, handlers)

	// 版本化 API 组
	apiV1 := router.Group("/api/v1")
	registerAPIRoutes(apiV1, handlers)
}

// registerAPIRoutes 注册业务路由
func registerAPIRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	// WebSocket 实时推送
	apiGroup.GET("/ws", h.WebSocket.Connect)

	// 审批工作流
	workflows := apiGroup.Group("/workflows")
	{
		workflows.POST("", h.Approvals.Create)
		workflows.GET("/:id", h.Approvals.Get)
		workflows.POST("/:id/decisions", h.Approvals.Decide)
	}

	// 审批人
	approversGroup := apiGroup.Group("/approvers")
	{
		approversGroup.GET("", h.Approvers.List)
		approversGroup.GET("/:id/pending", h.Approvers.Pending)
	}

	// 学习遥测
	learningGroup := apiGroup.Group("/learning")
	{
		learningGroup.POST("/records", h.Learning.CreateRecord)
		learningGroup.GET("/aggregates", h.Learning.Aggregates)
	}

	// 状态汇总
	apiGroup.GET("/stats", h.Approvals.Stats)
}
