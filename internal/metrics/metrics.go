package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remediation_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remediation_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 审批工作流指标
var (
	// WorkflowsCreatedTotal 创建的工作流总数
	WorkflowsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remediation_workflows_created_total",
			Help: "创建的审批工作流总数",
		},
		[]string{"urgency"},
	)

	// WorkflowsPendingGauge 未终态的工作流数量
	WorkflowsPendingGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "remediation_workflows_pending",
			Help: "处于 pending/partial_approval 状态的工作流数量",
		},
	)

	// DecisionsTotal 决策总数
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remediation_decisions_total",
			Help: "已受理的审批决策总数",
		},
		[]string{"outcome", "status"},
	)

	// DecisionRejectedTotal 被拒绝的决策提交总数（终态冲突/资格不符）
	DecisionRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remediation_decisions_rejected_total",
			Help: "被拒绝的决策提交总数",
		},
		[]string{"reason"},
	)

	// TimeToDecisionSeconds 工作流从创建到终态的耗时
	TimeToDecisionSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "remediation_time_to_decision_seconds",
			Help:    "工作流从创建到终态的耗时分布",
			Buckets: []float64{1, 10, 60, 300, 1800, 3600, 14400, 86400},
		},
	)
)

// 通知与实时推送指标
var (
	// NotificationsTotal 通知投递总数
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remediation_notifications_total",
			Help: "各渠道通知投递总数",
		},
		[]string{"channel", "status"},
	)

	// WebSocketConnectionsGauge 当前 WebSocket 观察者连接数
	WebSocketConnectionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "remediation_websocket_connections",
			Help: "当前 WebSocket 观察者连接数",
		},
	)

	// EventsPublishedTotal 生命周期事件发布总数
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remediation_events_published_total",
			Help: "生命周期事件发布总数",
		},
		[]string{"type"},
	)

	// LearningRecordsTotal 学习记录写入总数
	LearningRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remediation_learning_records_total",
			Help: "学习记录写入总数",
		},
		[]string{"status"},
	)
)
