package registry

import (
	"context"
	"errors"
	"fmt"

	"backend/internal/common"
	"backend/internal/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service 审批人注册表
// 只提供读取能力，审批人的增删改由外部系统负责
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService 创建注册表服务
func NewService(db *gorm.DB) *Service {
	return &Service{
		db:     db,
		logger: logger.Named("registry"),
	}
}

// Get 按 ID 查询审批人
func (s *Service) Get(ctx context.Context, id string) (*Approver, error) {
	var approver Approver
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&approver).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NewBusinessError(common.CodeNotFound, "审批人不存在")
		}
		return nil, fmt.Errorf("查询审批人失败: %w", err)
	}
	return &approver, nil
}

// Eligible 返回满足权限级别要求的活跃审批人
// 按权限级别升序返回，仅用于通知顺序，不影响决策优先级
func (s *Service) Eligible(ctx context.Context, requiredLevel int) ([]*Approver, error) {
	var approvers []*Approver
	if err := s.db.WithContext(ctx).
		Where("active = ? AND authority_level >= ?", true, requiredLevel).
		Order("authority_level ASC").
		Find(&approvers).Error; err != nil {
		return nil, fmt.Errorf("查询合格审批人失败: %w", err)
	}
	return approvers, nil
}

// Active 返回全部活跃审批人，按权限级别升序
// 资格快照取自这里：级别不足的审批人也可给出支持性批准
func (s *Service) Active(ctx context.Context) ([]*Approver, error) {
	var approvers []*Approver
	if err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("authority_level ASC").
		Find(&approvers).Error; err != nil {
		return nil, fmt.Errorf("查询活跃审批人失败: %w", err)
	}
	return approvers, nil
}

// List 返回全部审批人（运维接口使用）
func (s *Service) List(ctx context.Context) ([]*Approver, error) {
	var approvers []*Approver
	if err := s.db.WithContext(ctx).
		Order("authority_level ASC, name ASC").
		Find(&approvers).Error; err != nil {
		return nil, fmt.Errorf("查询审批人列表失败: %w", err)
	}
	return approvers, nil
}

// Seed 批量写入审批人（仅用于开发环境引导）
func (s *Service) Seed(ctx context.Context, approvers []*Approver) error {
	for _, a := range approvers {
		if err := s.db.WithContext(ctx).Save(a).Error; err != nil {
			return fmt.Errorf("写入审批人 %s 失败: %w", a.ID, err)
		}
	}
	s.logger.Info("审批人数据引导完成", zap.Int("count", len(approvers)))
	return nil
}
