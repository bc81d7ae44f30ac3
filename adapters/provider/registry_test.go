package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ssolink/resolver"
)

func TestRegistry(t *testing.T) {
	// auth0 未設定、github 設定完整，registry 只啟用 github
	registry, err := NewRegistry(context.Background(), Config{
		GitHub: GitHubConfig{ClientID: "client-id", ClientSecret: "client-secret"},
	}, "https://forum.example.com")
	require.NoError(t, err)

	t.Run("GetConfigured", func(t *testing.T) {
		p, err := registry.Get(resolver.ProviderGitHub)
		require.NoError(t, err)
		assert.Equal(t, resolver.ProviderGitHub, p.Meta().Provider)
	})
	t.Run("GetNotConfigured", func(t *testing.T) {
		_, err := registry.Get(resolver.ProviderAuth0)
		assert.ErrorIs(t, err, resolver.ErrNotConfigured)
	})
	t.Run("Metas", func(t *testing.T) {
		metas := registry.Metas()
		require.Len(t, metas, 1)
		assert.Equal(t, resolver.ProviderMeta{
			Provider:    resolver.ProviderGitHub,
			DisplayName: "GitHub",
			Icon:        "fa-github",
			LoginURL:    "https://forum.example.com/auth/github/login",
		}, metas[0])
	})
}
