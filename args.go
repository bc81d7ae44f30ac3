package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"ssolink/adapters/provider"
	"ssolink/api"
)

func ParseArgs() Args {
	// server config
	pflag.String("server-url", "0.0.0.0:8080", "")
	pflag.String("public-url", "", "")

	// auth config
	pflag.String("auth-private-key", "", "base64-encoded ed25519 seed or private key")
	pflag.String("auth-issuer", "ssolink", "")
	pflag.String("auth-audience", "forum", "")
	pflag.Duration("auth-expire-duration", 3*time.Hour, "")

	// provider config
	pflag.String("auth0-domain", "", "")
	pflag.String("auth0-client-id", "", "")
	pflag.String("auth0-client-secret", "", "")
	pflag.String("github-client-id", "", "")
	pflag.String("github-client-secret", "", "")

	// db config
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")
	pflag.String("db-schema", "", "")

	// redis config
	pflag.String("redis-addr", "", "")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 15, "")
	pflag.String("redis-key-prefix", "ssolink:", "")

	// redis stream keys
	pflag.String("redis-stream-key-for-login", "ssolink-login-events", "")

	// session config
	pflag.String("session-key-for-cookie", "ssolink-session", "")
	pflag.Duration("session-cookie-max-age", 24*time.Hour, "")

	// bind pflag to viper
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("SSOLINK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// initial arguments
	return Args{
		ServerURL: viper.GetString("server-url"),
		ServerConfig: api.ServerConfig{
			PublicURL: strings.TrimRight(viper.GetString("public-url"), "/"),
			Auth: api.AuthConfig{
				PrivateKey:     parsePrivateKey(viper.GetString("auth-private-key")),
				Issuer:         viper.GetString("auth-issuer"),
				Audience:       viper.GetString("auth-audience"),
				ExpireDuration: viper.GetDuration("auth-expire-duration"),
			},
			Providers: provider.Config{
				Auth0: provider.Auth0Config{
					Domain:       viper.GetString("auth0-domain"),
					ClientID:     viper.GetString("auth0-client-id"),
					ClientSecret: viper.GetString("auth0-client-secret"),
				},
				GitHub: provider.GitHubConfig{
					ClientID:     viper.GetString("github-client-id"),
					ClientSecret: viper.GetString("github-client-secret"),
				},
			},
			DB: api.DBConfig{
				User:     viper.GetString("db-user"),
				Password: viper.GetString("db-password"),
				Host:     viper.GetString("db-host"),
				Port:     viper.GetInt("db-port"),
				Database: viper.GetString("db-database"),
				Schema:   viper.GetString("db-schema"),
			},
			Redis: api.RedisConfig{
				Addr:      viper.GetString("redis-addr"),
				Password:  viper.GetString("redis-password"),
				DB:        viper.GetInt("redis-db"),
				KeyPrefix: viper.GetString("redis-key-prefix"),
				StreamKeys: api.RedisStreamKeys{
					Login: viper.GetString("redis-stream-key-for-login"),
				},
			},
			Session: api.SessionConfig{
				KeyForCookie: viper.GetString("session-key-for-cookie"),
				CookieMaxAge: viper.GetDuration("session-cookie-max-age"),
			},
		},
	}
}

// parsePrivateKey 解析base64編碼的ed25519金鑰，支援seed和完整私鑰兩種長度
func parsePrivateKey(encoded string) ed25519.PrivateKey {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw)
	default:
		return nil
	}
}

type Args struct {
	ServerURL    string
	ServerConfig api.ServerConfig
}

func (args Args) Validate() bool {
	return args.ServerURL != "" &&
		args.ServerConfig.PublicURL != "" &&
		len(args.ServerConfig.Auth.PrivateKey) == ed25519.PrivateKeySize &&
		args.ServerConfig.DB.Host != "" &&
		args.ServerConfig.Redis.Addr != ""
}
