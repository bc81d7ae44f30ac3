package provider

import (
	"context"
	"fmt"

	"ssolink/adapters/oidc"
	"ssolink/resolver"
)

// Auth0Config 是 Auth0 租戶的連線設定
type Auth0Config struct {
	Domain       string
	ClientID     string
	ClientSecret string
}

// Configured 回報設定是否完整到可以啟用
func (c Auth0Config) Configured() bool {
	return c.Domain != "" && c.ClientID != "" && c.ClientSecret != ""
}

type auth0Provider struct {
	provider *oidc.Provider
	meta     resolver.ProviderMeta
}

// NewAuth0 建立 Auth0 提供者，會即時向租戶抓取 OIDC discovery 文件
func NewAuth0(ctx context.Context, config Auth0Config, loginURL string) (Provider, error) {
	const op = "provider.NewAuth0"
	issuer := "https://" + config.Domain + "/"
	p, err := oidc.NewProvider(ctx, issuer, config.ClientID, config.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create oidc provider, err=%w", op, err)
	}
	return &auth0Provider{
		provider: p,
		meta: resolver.ProviderMeta{
			Provider:    resolver.ProviderAuth0,
			DisplayName: "Auth0",
			Icon:        "fa-star",
			LoginURL:    loginURL,
		},
	}, nil
}

func (p *auth0Provider) Meta() resolver.ProviderMeta {
	return p.meta
}

func (p *auth0Provider) AuthURL(state, nonce, redirectURL string) string {
	return p.provider.AuthURL(state, nonce, redirectURL, []string{"email", "openid", "profile"})
}

func (p *auth0Provider) Exchange(ctx context.Context, params ExchangeParams) (resolver.ExternalIdentity, error) {
	const op = "provider.auth0Provider.Exchange"
	verifier := p.provider.NewExchangeVerifier(params.ExpectedState, params.ExpectedNonce)
	token, err := p.provider.Exchange(ctx, verifier, params.Code, params.State, params.RedirectURL)
	if err != nil {
		return resolver.ExternalIdentity{}, fmt.Errorf("[%s] Fail to exchange token, err=%w", op, err)
	}

	identity := resolver.ExternalIdentity{
		Provider:  resolver.ProviderAuth0,
		SubjectID: token.IDToken.Sub,
	}
	// Auth0 的 nickname 對應使用者自選的帳號名，比 name 更接近站內慣用名
	if token.IDToken.Nickname != "" {
		identity.DisplayName = token.IDToken.Nickname
	} else {
		identity.DisplayName = token.IDToken.Name
	}
	if token.IDToken.Email.Email != "" {
		identity.Emails = []resolver.EmailCandidate{{
			Address: token.IDToken.Email.Email,
			Primary: true,
		}}
	}
	return identity, nil
}
