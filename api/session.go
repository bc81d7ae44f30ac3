package api

import (
	"github.com/gin-gonic/gin"

	"ssolink/adapters/redis"
	"ssolink/adapters/session"
)

const (
	SESSION_KEY_REQUEST_STATE    = "request_state"
	SESSION_KEY_REQUEST_NONCE    = "request_nonce"
	SESSION_KEY_URL_BEFORE_LOGIN = "url_before_login"
)

func (impl *ServerImpl) SessionMiddleware() gin.HandlerFunc {
	store := redis.NewStore(
		impl.redisClient,
		redis.WithStorePrefix(impl.config.Redis.KeyPrefix+"session:"),
	)
	return session.GinMiddleware(
		store,
		session.WithSessionKeyForCookie(impl.config.Session.KeyForCookie),
		session.WithCookieMaxAge(impl.config.Session.CookieMaxAge),
	)
}

// session 取出 middleware 掛在 context 上且已載入內容的 session
func (impl *ServerImpl) session(c *gin.Context) (session.ISession, error) {
	return session.GetSession(c)
}
