package worker

import (
	"context"
	"fmt"

	"backend/internal/config"
	"backend/internal/notification"
	"backend/internal/remediation"
	"backend/internal/worker/handlers"
	"backend/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

func NewServer(
	redisCfg config.RedisConfig,
	workerCfg config.WorkerConfig,
	dispatcher *notification.Dispatcher,
	store *remediation.Store,
	sink remediation.LearningSink,
	logger *zap.Logger,
) *Server {
	concurrency := workerCfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	queues := workerCfg.Queues
	if len(queues) == 0 {
		queues = map[string]int{
			"notify":   6, // 通知投递优先级高
			"learning": 3,
			"default":  1,
		}
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     fmt.Sprintf("%s:%d", redisCfg.Host, redisCfg.Port),
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues:      queues,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("任务执行失败",
					zap.String("type", task.Type()),
					zap.Error(err),
				)
			}),
		},
	)

	mux := asynq.NewServeMux()

	// 注册通知处理器
	notificationHandler := handlers.NewNotificationHandler(dispatcher, logger)
	mux.HandleFunc(tasks.TypeDeliverNotification, notificationHandler.HandleDeliver)

	// 注册学习处理器
	learningHandler := handlers.NewLearningHandler(store, sink, logger)
	mux.HandleFunc(tasks.TypeRecordLearning, learningHandler.HandleRecordOutcome)

	return &Server{
		server: srv,
		mux:    mux,
		logger: logger,
	}
}

// Run 启动 Worker 服务器
func (s *Server) Run() error {
	s.logger.Info("Worker 服务器启动中...")
	return s.server.Run(s.mux)
}

// Start 非阻塞启动
func (s *Server) Start() error {
	s.logger.Info("Worker 服务器启动中 (后台)...")
	return s.server.Start(s.mux)
}

// Shutdown 停止 Worker 服务器
func (s *Server) Shutdown() {
	s.logger.Info("Worker 服务器停止中...")
	s.server.Shutdown()
}
