package resolver

import "errors"

var (
	// ErrInvalidProfile 表示提供者回傳的 profile 無法使用（例如缺少可用的 email）
	ErrInvalidProfile = errors.New("invalid profile")
	// ErrStoreUnavailable 表示 link store 或帳號儲存層的讀寫失敗
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrCreateFailed 表示建立本地帳號失敗
	ErrCreateFailed = errors.New("account creation failed")
	// ErrNotConfigured 表示提供者未設定，不提供該登入方式
	ErrNotConfigured = errors.New("provider not configured")
)
