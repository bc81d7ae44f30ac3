// Package provider 將各家外部身份提供者的交涉流程收斂成同一個介面，
// 交換完成後一律回傳正規化的 resolver.ExternalIdentity，
// 連結、合併、開帳號的決策都不在這一層發生。
package provider

import (
	"context"

	"ssolink/resolver"
)

// ExchangeParams 是 callback 階段交換授權碼需要的參數
type ExchangeParams struct {
	Code          string
	State         string // callback 帶回的 state
	ExpectedState string // login 階段存進 session 的 state
	ExpectedNonce string // login 階段存進 session 的 nonce（非 OIDC 提供者忽略）
	RedirectURL   string
}

// Provider 定義單一外部身份提供者的操作介面
type Provider interface {
	// Meta 回傳提供者在關聯畫面上的顯示資訊
	Meta() resolver.ProviderMeta
	// AuthURL 組出導向提供者登入頁的網址
	AuthURL(state, nonce, redirectURL string) string
	// Exchange 以授權碼交換 token 並取回正規化的身份資料
	Exchange(ctx context.Context, params ExchangeParams) (resolver.ExternalIdentity, error)
}
