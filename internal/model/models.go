package model

import (
	"time"
)

// TaskStatus 表示任务的处理状态。
type TaskStatus string

const (
	StatusPending    TaskStatus = "PENDING"     // 待处理（创建时的唯一状态）
	StatusInProgress TaskStatus = "IN_PROGRESS" // 进行中
	StatusDone       TaskStatus = "DONE"        // 已完成
)

// Valid 报告状态是否属于封闭集合。
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Task 表示一个团队任务。
//
// 每个任务在创建后恰好归属一个用户（UserID），归属关系由服务端写入，
// 之后的更新不会改变它。Deadline 可为空，为空的任务不会收到截止提醒。
type Task struct {
	ID        uint      `gorm:"primaryKey"` // 任务唯一标识
	CreatedAt time.Time // 创建时间
	UpdatedAt time.Time // 更新时间

	UserID uint `gorm:"not null;index"`                                 // 所属用户 ID
	User   User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"` // 所属用户

	Title       string     `gorm:"type:varchar(255);not null"`                  // 标题（必填）
	Description string     `gorm:"type:text"`                                   // 描述
	Deadline    *time.Time `gorm:"index"`                                       // 截止时间（可空）
	Status      TaskStatus `gorm:"type:varchar(16);not null;default:'PENDING'"` // 状态
}

// ReminderCandidate 是提醒扫描读取的一行数据。
//
// 它只携带发送提醒所需的字段，避免在扫描时加载完整的用户记录。
type ReminderCandidate struct {
	TaskID     uint
	Title      string
	Deadline   *time.Time
	OwnerEmail string
}
