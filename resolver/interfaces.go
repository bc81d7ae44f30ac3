//go:generate mockgen -package=resolver -destination=mock.go -source=interfaces.go

package resolver

import (
	"context"

	"github.com/google/uuid"
)

// LinkStore 定義 (provider, subjectID) -> userID 對應的儲存介面
// 這份對應是身份連結的唯一權威來源
type LinkStore interface {
	// Get 查詢對應，找不到時回傳 (uuid.Nil, false, nil)
	Get(ctx context.Context, provider Provider, subjectID string) (uuid.UUID, bool, error)
	// Put 寫入對應，已存在時直接覆寫
	Put(ctx context.Context, provider Provider, subjectID string, userID uuid.UUID) error
	// Delete 刪除對應，對應不存在時視為成功
	Delete(ctx context.Context, provider Provider, subjectID string) error
}

// UserStore 定義宿主平台使用者儲存層的介面
// Resolver 只讀寫必要的欄位，不擁有使用者的生命週期
type UserStore interface {
	// GetUserIDByEmail 以 email 查詢使用者，找不到時回傳 (uuid.Nil, false, nil)
	GetUserIDByEmail(ctx context.Context, email string) (uuid.UUID, bool, error)
	// CreateUser 建立新的使用者並回傳其 ID
	CreateUser(ctx context.Context, username, email string) (uuid.UUID, error)
	// SetProviderSubject 更新使用者帳號上的提供者識別欄位（link store 的非權威鏡像）
	SetProviderSubject(ctx context.Context, userID uuid.UUID, provider Provider, subjectID string) error
	// GetProviderSubject 讀取使用者帳號上的提供者識別欄位
	GetProviderSubject(ctx context.Context, userID uuid.UUID, provider Provider) (string, bool, error)
	// DeleteProviderSubject 移除使用者帳號上的提供者識別欄位，不存在時視為成功
	DeleteProviderSubject(ctx context.Context, userID uuid.UUID, provider Provider) error
}

// Locker 定義首次連結時用來序列化同一個 subject id 的鎖
type Locker interface {
	Lock(ctx context.Context) (context.Context, error)
	Unlock() (bool, error)
}

// LockerFactory 依照鎖的 key 建立 Locker
type LockerFactory func(key string) Locker
