package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User 代表論壇平台中的使用者帳號
// 本服務只讀寫 email 與顯示名稱，不擁有帳號的生命週期
type User struct {
	gorm.Model

	ID       uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	Username string    `gorm:"type:varchar(255);not null;<-:create"`
	Email    string    `gorm:"type:varchar(255);index:idx_users_email,where:deleted_at IS NULL;<-:create"`

	Identities []UserIdentity
}
