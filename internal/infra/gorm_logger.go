package infra

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormLogger "gorm.io/gorm/logger"
)

// 慢查询阈值；审批决策是短事务，超过即值得关注
const slowQueryThreshold = 200 * time.Millisecond

// gormZapLogger 把 GORM 日志并入应用的 zap 日志流
// 日志级别跟随应用 log.level：debug 时逐条打印 SQL，其余只报慢查询与错误；
// ErrRecordNotFound 属于正常业务分支（工作流/审批人不存在），不作为错误记录
type gormZapLogger struct {
	zap      *zap.Logger
	level    gormLogger.LogLevel
	slowTime time.Duration
}

// newGormZapLogger 按应用日志级别创建 GORM 日志适配器
func newGormZapLogger(zapLogger *zap.Logger, appLevel string) *gormZapLogger {
	level := gormLogger.Warn
	switch appLevel {
	case "debug":
		level = gormLogger.Info
	case "error":
		level = gormLogger.Error
	}
	return &gormZapLogger{
		zap:      zapLogger,
		level:    level,
		slowTime: slowQueryThreshold,
	}
}

// LogMode 实现 gormLogger.Interface
func (l *gormZapLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormZapLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormLogger.Info {
		l.zap.Sugar().Infof(msg, args...)
	}
}

func (l *gormZapLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormLogger.Warn {
		l.zap.Sugar().Warnf(msg, args...)
	}
}

func (l *gormZapLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormLogger.Error {
		l.zap.Sugar().Errorf(msg, args...)
	}
}

// Trace 记录 SQL 执行情况
func (l *gormZapLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormLogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	switch {
	case err != nil && !errors.Is(err, gormLogger.ErrRecordNotFound):
		l.zap.Error("SQL 执行错误", append(fields, zap.Error(err))...)
	case l.slowTime > 0 && elapsed > l.slowTime:
		l.zap.Warn("SQL 慢查询", fields...)
	case l.level >= gormLogger.Info:
		l.zap.Debug("SQL 执行", fields...)
	}
}
