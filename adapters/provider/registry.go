package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"ssolink/resolver"
)

// Config 彙整所有提供者的設定，缺漏的提供者會在啟動時跳過而不是報錯
type Config struct {
	Auth0  Auth0Config
	GitHub GitHubConfig
}

// Registry 保存啟動時成功初始化的提供者
type Registry struct {
	providers map[resolver.Provider]Provider
	order     []resolver.Provider
}

type registryOptions struct {
	logger     *slog.Logger
	githubOpts []GitHubOption
}

type RegistryOption func(*registryOptions)

func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(o *registryOptions) {
		o.logger = logger
	}
}

// WithRegistryGitHubOptions 傳遞 GitHub 提供者的額外選項，測試用
func WithRegistryGitHubOptions(opts ...GitHubOption) RegistryOption {
	return func(o *registryOptions) {
		o.githubOpts = append(o.githubOpts, opts...)
	}
}

// NewRegistry 依設定建立所有可用的提供者。
// 設定不完整的提供者記一筆 log 後跳過，之後對它的查詢回 ErrNotConfigured；
// 設定完整但初始化失敗（例如 discovery 抓不到）則視為啟動錯誤。
func NewRegistry(ctx context.Context, config Config, publicURL string, opts ...RegistryOption) (*Registry, error) {
	const op = "provider.NewRegistry"
	options := registryOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}

	registry := &Registry{providers: map[resolver.Provider]Provider{}}
	add := func(name resolver.Provider, p Provider) {
		registry.providers[name] = p
		registry.order = append(registry.order, name)
	}
	loginURL := func(name resolver.Provider) string {
		return fmt.Sprintf("%s/auth/%s/login", publicURL, name)
	}

	if config.Auth0.Configured() {
		p, err := NewAuth0(ctx, config.Auth0, loginURL(resolver.ProviderAuth0))
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to initialize auth0 provider, err=%w", op, err)
		}
		add(resolver.ProviderAuth0, p)
	} else {
		options.logger.Info("provider is not configured, skipping", slog.String("provider", string(resolver.ProviderAuth0)))
	}

	if config.GitHub.Configured() {
		add(resolver.ProviderGitHub, NewGitHub(config.GitHub, loginURL(resolver.ProviderGitHub), options.githubOpts...))
	} else {
		options.logger.Info("provider is not configured, skipping", slog.String("provider", string(resolver.ProviderGitHub)))
	}

	return registry, nil
}

// Get 取回指定的提供者，未啟用時回傳 resolver.ErrNotConfigured
func (r *Registry) Get(name resolver.Provider) (Provider, error) {
	const op = "provider.Registry.Get"
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("[%s] Provider %q is not available, err=%w", op, name, resolver.ErrNotConfigured)
	}
	return p, nil
}

// Metas 依註冊順序回傳所有啟用中提供者的顯示資訊
func (r *Registry) Metas() []resolver.ProviderMeta {
	return lo.Map(r.order, func(name resolver.Provider, _ int) resolver.ProviderMeta {
		return r.providers[name].Meta()
	})
}
