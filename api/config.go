package api

import (
	"crypto/ed25519"
	"time"

	"ssolink/adapters/provider"
)

type ServerConfig struct {
	// PublicURL 是服務對外的根網址，用於組出 callback 和各提供者的登入網址
	PublicURL string

	Auth      AuthConfig
	Providers provider.Config
	DB        DBConfig
	Redis     RedisConfig
	Session   SessionConfig
}

type AuthConfig struct {
	PrivateKey     ed25519.PrivateKey
	Issuer         string
	Audience       string
	ExpireDuration time.Duration
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string

	StreamKeys RedisStreamKeys
}

type RedisStreamKeys struct {
	// Login 是登入成功事件的 stream，由宿主平台消費以建立自己的 session
	Login string
}

type SessionConfig struct {
	KeyForCookie string
	CookieMaxAge time.Duration
}
