package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"ssolink/adapters/oidc"
	"ssolink/resolver"
)

const defaultGitHubAPIBaseURL = "https://api.github.com"

// GitHubConfig 是 GitHub OAuth App 的連線設定
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
}

// Configured 回報設定是否完整到可以啟用
func (c GitHubConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type githubProvider struct {
	config     oauth2.Config
	apiBaseURL string
	meta       resolver.ProviderMeta
}

type GitHubOption func(*githubProvider)

// WithGitHubEndpoint 覆寫 OAuth2 端點，測試時指向本地 test server
func WithGitHubEndpoint(endpoint oauth2.Endpoint) GitHubOption {
	return func(p *githubProvider) {
		p.config.Endpoint = endpoint
	}
}

// WithGitHubAPIBaseURL 覆寫 REST API 的 base URL，測試時指向本地 test server
func WithGitHubAPIBaseURL(baseURL string) GitHubOption {
	return func(p *githubProvider) {
		p.apiBaseURL = baseURL
	}
}

// NewGitHub 建立 GitHub 提供者。GitHub 走純 OAuth2，
// 身份資料靠 REST API 取回而不是 ID Token。
func NewGitHub(config GitHubConfig, loginURL string, opts ...GitHubOption) Provider {
	p := &githubProvider{
		config: oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     github.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		apiBaseURL: defaultGitHubAPIBaseURL,
		meta: resolver.ProviderMeta{
			Provider:    resolver.ProviderGitHub,
			DisplayName: "GitHub",
			Icon:        "fa-github",
			LoginURL:    loginURL,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *githubProvider) Meta() resolver.ProviderMeta {
	return p.meta
}

// AuthURL 組出授權頁網址，GitHub 沒有 nonce 機制所以忽略該參數
func (p *githubProvider) AuthURL(state, _, redirectURL string) string {
	config := p.config
	config.RedirectURL = redirectURL
	return config.AuthCodeURL(state)
}

func (p *githubProvider) Exchange(ctx context.Context, params ExchangeParams) (resolver.ExternalIdentity, error) {
	const op = "provider.githubProvider.Exchange"
	if params.State != params.ExpectedState {
		return resolver.ExternalIdentity{}, fmt.Errorf("[%s] Fail to verify state, err=%w", op, oidc.ErrStateMismatch)
	}

	config := p.config
	config.RedirectURL = params.RedirectURL
	token, err := config.Exchange(ctx, params.Code)
	if err != nil {
		return resolver.ExternalIdentity{}, fmt.Errorf("[%s] Fail to exchange token, err=%w", op, err)
	}
	client := config.Client(ctx, token)

	var profile struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := p.getJSON(ctx, client, "/user", &profile); err != nil {
		return resolver.ExternalIdentity{}, fmt.Errorf("[%s] Fail to fetch user profile, err=%w", op, err)
	}

	identity := resolver.ExternalIdentity{
		Provider:  resolver.ProviderGitHub,
		SubjectID: strconv.FormatInt(profile.ID, 10),
	}
	if profile.Login != "" {
		identity.DisplayName = profile.Login
	} else {
		identity.DisplayName = profile.Name
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := p.getJSON(ctx, client, "/user/emails", &emails); err == nil {
		for _, email := range emails {
			identity.Emails = append(identity.Emails, resolver.EmailCandidate{
				Address: email.Email,
				Primary: email.Primary,
			})
		}
	} else if profile.Email != "" {
		// 沒拿到 user:email scope 時退回公開 email
		identity.Emails = []resolver.EmailCandidate{{Address: profile.Email, Primary: true}}
	}
	return identity, nil
}

func (p *githubProvider) getJSON(ctx context.Context, client *http.Client, path string, v any) error {
	const op = "provider.githubProvider.getJSON"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("[%s] Fail to create request, err=%w", op, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("[%s] Fail to send request, err=%w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("[%s] Unexpected status code %d, body=%s", op, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("[%s] Fail to decode response, err=%w", op, err)
	}
	return nil
}
