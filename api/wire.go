package api

import (
	"backend/api/handlers/approvals"
	"backend/api/handlers/approvers"
	learningHandlers "backend/api/handlers/learning"
	"backend/api/handlers/notifications"
	"backend/internal/config"
	"backend/internal/learning"
	"backend/internal/logger"
	"backend/internal/notification"
	"backend/internal/registry"
	"backend/internal/remediation"
	"backend/internal/worker"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// AppContainer 聚合全部服务实例，供路由注册与 Worker 装配使用
type AppContainer struct {
	DB     *gorm.DB
	Config *config.Config
	Redis  redis.UniversalClient

	Registry    *registry.Service
	Store       *remediation.Store
	Hub         *notification.WebSocketHub
	EventBus    *remediation.EventBus
	Dispatcher  *notification.Dispatcher
	Learning    *learning.Service
	Sink        remediation.LearningSink
	Remediation *remediation.Service
	QueueClient *worker.Client
}

// Handlers 聚合全部 HTTP 处理器
type Handlers struct {
	Approvals *approvals.Handler
	Approvers *approvers.Handler
	Learning  *learningHandlers.Handler
	WebSocket *notifications.WebSocketHandler
}

// BuildContainer 按依赖顺序装配服务
// redisClient 为 nil 时离线消息落内存、异步任务走进程内执行
func BuildContainer(db *gorm.DB, cfg *config.Config, redisClient redis.UniversalClient) (*AppContainer, *Handlers) {
	registryService := registry.NewService(db)
	store := remediation.NewStore(db)

	// 实时扇出：WebSocket Hub + 进程内事件总线
	var offlineStore notification.OfflineStore = notification.NewMemoryOfflineStore(cfg.Approval.OfflineQueueLimit)
	if redisClient != nil {
		offlineStore = notification.NewRedisOfflineStore(redisClient, cfg.Approval.OfflineQueueLimit)
	}
	hub := notification.NewWebSocketHub(
		notification.WithOfflineStore(offlineStore),
		notification.WithKeepAliveInterval(cfg.Approval.KeepAlive()),
	)
	eventBus := remediation.NewEventBus(64)

	// 异步任务客户端，仅在 Redis 启用时创建
	var queueClient *worker.Client
	if redisClient != nil {
		queueClient = worker.NewClient(cfg.Redis, logger.Named("queue"))
	}

	// 通知分发
	multiNotifier := notification.NewMultiNotifier(&cfg.Notification.Email, &cfg.Notification.Webhook, hub)
	dispatcherOpts := []notification.DispatcherOption{
		notification.WithChannels(cfg.Approval.DefaultChannels),
		notification.WithChannelRules(cfg.Approval.ChannelRules),
	}
	if queueClient != nil {
		dispatcherOpts = append(dispatcherOpts, notification.WithEnqueuer(queueClient))
	}
	dispatcher := notification.NewDispatcher(db, multiNotifier, registryService, store, dispatcherOpts...)

	// 学习遥测，Redis 启用时改走任务队列
	learningService := learning.NewService(db, cfg.Approval.RejectionReasonTop)
	var sink remediation.LearningSink = learningService
	if queueClient != nil {
		sink = worker.NewQueuedLearningSink(queueClient, learningService, logger.Named("queue"))
	}

	remediationService := remediation.NewService(store, registryService,
		remediation.WithDispatcher(dispatcher),
		remediation.WithEventPublisher(hub),
		remediation.WithEventPublisher(eventBus),
		remediation.WithLearningSink(sink),
		remediation.WithPendingPageSize(cfg.Approval.PendingPageSize),
	)

	container := &AppContainer{
		DB:          db,
		Config:      cfg,
		Redis:       redisClient,
		Registry:    registryService,
		Store:       store,
		Hub:         hub,
		EventBus:    eventBus,
		Dispatcher:  dispatcher,
		Learning:    learningService,
		Sink:        sink,
		Remediation: remediationService,
		QueueClient: queueClient,
	}

	handlers := &Handlers{
		Approvals: approvals.NewHandler(remediationService),
		Approvers: approvers.NewHandler(registryService, remediationService),
		Learning:  learningHandlers.NewHandler(learningService),
		WebSocket: notifications.NewWebSocketHandler(hub),
	}

	return container, handlers
}
