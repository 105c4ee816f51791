package registry

import "time"

// Approver 审批人
// 由外部系统预置，本服务只读
type Approver struct {
	ID             string `json:"id" gorm:"primaryKey;type:uuid"`
	Name           string `json:"name" gorm:"size:255;not null"`
	Contact        string `json:"contact" gorm:"size:255"`
	AuthorityLevel int    `json:"authorityLevel" gorm:"not null;index"` // 审批权限级别，>=1
	Department     string `json:"department" gorm:"size:100"`
	Active         bool   `json:"active" gorm:"default:true;index"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

func (Approver) TableName() string {
	return "approvers"
}
