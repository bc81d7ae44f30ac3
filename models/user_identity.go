package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"ssolink/resolver"
)

// UserIdentity 是帳號上的提供者識別鏡像，
// 紀錄使用者在某個外部提供者的 subject id。
// 權威來源是 link store，這張表只是帳號讀取路徑的反正規化副本。
// 兩組部分唯一索引保證同一個 subject 只對應一個帳號，
// 且一個帳號在同一個提供者只能綁定一個 subject。
type UserIdentity struct {
	gorm.Model

	ID        uuid.UUID         `gorm:"type:uuid;primaryKey;<-:create"`
	Provider  resolver.Provider `gorm:"type:text;uniqueIndex:idx_user_identities_provider_user,where:deleted_at IS NULL;uniqueIndex:idx_user_identities_provider_subject,where:deleted_at IS NULL;not null;<-:create"`
	UserID    uuid.UUID         `gorm:"type:uuid;uniqueIndex:idx_user_identities_provider_user,where:deleted_at IS NULL;not null;<-:create"`
	SubjectID string            `gorm:"type:text;uniqueIndex:idx_user_identities_provider_subject,where:deleted_at IS NULL;not null"`

	User *User `gorm:"foreignKey:UserID"`
}
