package oidc

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// ExchangeVerifier 驗證一次授權碼交換：
// callback 送回的 state/nonce 必須和 login 階段存進 session 的值一致
type ExchangeVerifier struct {
	idTokenVerifier *oidc.IDTokenVerifier
	reqState        string // login 階段存下的 state
	reqNonce        string // login 階段存下的 nonce
}

// VerifyIDToken 驗證 ID 令牌的簽章與有效期
func (v *ExchangeVerifier) VerifyIDToken(ctx context.Context, rawIDToken string) (*oidc.IDToken, error) {
	const op = "VerifyIDToken"
	idToken, err := v.idTokenVerifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	return idToken, nil
}

// VerifyState 驗證 callback 帶回的 state 是否與 login 階段一致
func (v *ExchangeVerifier) VerifyState(state string) bool {
	return subtle.ConstantTimeCompare([]byte(state), []byte(v.reqState)) == 1
}

// VerifyNonce 驗證 ID 令牌內的 nonce 是否與 login 階段一致
func (v *ExchangeVerifier) VerifyNonce(nonce string) bool {
	return subtle.ConstantTimeCompare([]byte(nonce), []byte(v.reqNonce)) == 1
}
