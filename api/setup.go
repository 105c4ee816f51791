package api

import (
	"backend/internal/config"
	"backend/internal/infra"
	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// SetupRouter 设置并返回 Gin 路由、服务容器与 Worker 服务器
// Worker 仅在 Redis 启用时创建，否则异步任务全部在进程内执行
func SetupRouter(db *gorm.DB, cfg *config.Config) (*gin.Engine, *AppContainer, *worker.Server) {
	router := gin.New()

	// 全局中间件
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(CORS())
	router.Use(metrics.PrometheusMiddleware())

	// 公开端点
	router.GET("/health", HealthCheck(db))
	router.GET("/ready", ReadinessCheck(db))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	container, handlers := BuildContainer(db, cfg, infra.GetRedis())
	RegisterRoutes(router, handlers)

	var workerServer *worker.Server
	if container.Redis != nil {
		workerServer = worker.NewServer(
			cfg.Redis,
			cfg.Worker,
			container.Dispatcher,
			container.Store,
			container.Learning,
			logger.Named("worker"),
		)
	}

	return router, container, workerServer
}
