package model

import "time"

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User 表示系统用户。
type User struct {
	ID        uint      `gorm:"primaryKey"`                              // 用户 ID
	Username  string    `gorm:"type:varchar(64);uniqueIndex;not null"`   // 用户名（唯一，不可修改）
	Email     string    `gorm:"type:varchar(191);not null"`              // 邮箱（接收提醒）
	Password  string    `gorm:"not null" json:"-"`                       // bcrypt 哈希
	Role      string    `gorm:"type:varchar(16);not null;default:USER"` // 角色: USER / ADMIN
	CreatedAt time.Time // 创建时间

	Tasks []Task `gorm:"foreignKey:UserID"`
}

// Identity 是从令牌解析出的调用方身份。
//
// 中间件解析一次后显式传给各个处理函数，处理函数不再读取任何全局上下文。
type Identity struct {
	UserID   uint
	Username string
	Role     string
}

// IsAdmin 报告调用方是否为管理员。
func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}
