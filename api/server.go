package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"ssolink/adapters/oidc"
	"ssolink/adapters/provider"
	redisAdapter "ssolink/adapters/redis"
	"ssolink/adapters/userdb"
	"ssolink/models"
	"ssolink/resolver"
)

const COOKIE_ACCESS_TOKEN = "access_token"

type ServerImpl struct {
	registry    *provider.Registry
	resolver    *resolver.Resolver
	producer    redisAdapter.IProducer[LoginEvent]
	redisClient *redis.Client
	db          *gorm.DB

	config ServerConfig
}

func NewServer(config ServerConfig) (*ServerImpl, error) {
	const op = "NewServer"

	// 初始化提供者
	registry, err := provider.NewRegistry(context.Background(), config.Providers, config.PublicURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to initialize providers, err=%w", op, err)
	}

	// 初始化資料庫連線
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s", config.DB.User, config.DB.Password, config.DB.Host, config.DB.Port, config.DB.Database, config.DB.Schema)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: config.DB.Schema + ".",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.UserIdentity{}); err != nil {
		return nil, fmt.Errorf("[%s] Fail to migrate database, err=%w", op, err)
	}

	// 初始化Redis連線
	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})

	// 初始化身份解析器
	linkStore, err := redisAdapter.NewLinkStore(redisClient, redisAdapter.WithLinkStorePrefix(config.Redis.KeyPrefix))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create link store, err=%w", op, err)
	}
	userStore, err := userdb.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create user store, err=%w", op, err)
	}
	identityResolver, err := resolver.NewResolver(
		linkStore,
		userStore,
		registry.Metas(),
		resolver.WithLogger(slog.Default()),
		resolver.WithSubjectLocker(func(key string) resolver.Locker {
			lockKey := fmt.Sprintf("%slink:%s:lock", config.Redis.KeyPrefix, key)
			return redisAdapter.NewAutoRenewMutex(redisClient, lockKey)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create identity resolver, err=%w", op, err)
	}

	// 初始化登入事件producer
	producer, err := redisAdapter.NewProducer[LoginEvent](
		redisClient,
		config.Redis.StreamKeys.Login,
		redisAdapter.WithProducerLogger[LoginEvent](slog.Default()),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create producer, err=%w", op, err)
	}

	return &ServerImpl{
		registry:    registry,
		resolver:    identityResolver,
		producer:    producer,
		redisClient: redisClient,
		db:          db,
		config:      config,
	}, nil
}

func (impl *ServerImpl) Start() {
	// 啟動producer
	impl.producer.Start()
}

func (impl *ServerImpl) Close() {
	// 關閉producer，剩餘的事件會在關閉前送出
	impl.producer.Close()
}

func (impl *ServerImpl) RegisterRoutes(router gin.IRouter) {
	router.GET("/auth/:provider/login", impl.GetAuthProviderLogin)
	router.GET("/auth/:provider/callback", impl.GetAuthProviderCallback)
	router.GET("/auth/logout", impl.GetAuthLogout)
	router.GET("/user/associations", impl.GetUserAssociations)
	router.DELETE("/internal/users/:id", impl.DeleteInternalUser)
}

// Obtain authentication url
// (GET /auth/{provider}/login)
func (impl *ServerImpl) GetAuthProviderLogin(c *gin.Context) {
	const op = "GetAuthProviderLogin"
	// 取得provider
	p, err := impl.registry.Get(resolver.Provider(c.Param("provider")))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	state, err := generateID("st")
	if err != nil {
		slog.Error("Unable to generate state", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	nonce, err := generateID("n")
	if err != nil {
		slog.Error("Unable to generate nonce", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	// 將 state/nonce 和登入前的頁面存進 session，callback 時驗證
	sess, err := impl.session(c)
	if err != nil {
		slog.Error("Fail to get session", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	sess.Set(SESSION_KEY_REQUEST_STATE, state)
	sess.Set(SESSION_KEY_REQUEST_NONCE, nonce)
	sess.Set(SESSION_KEY_URL_BEFORE_LOGIN, c.Query("redirect"))
	if err := sess.Save(); err != nil {
		slog.Error("Fail to save session", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	// 導向 sso server 的登入頁面
	c.Redirect(http.StatusFound, p.AuthURL(state, nonce, impl.callbackURL(c.Param("provider"))))
}

// Exchange authorization code
// (GET /auth/{provider}/callback)
func (impl *ServerImpl) GetAuthProviderCallback(c *gin.Context) {
	const op = "GetAuthProviderCallback"
	// 取得provider
	providerName := c.Param("provider")
	p, err := impl.registry.Get(resolver.Provider(providerName))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	// 驗證 callback 的參數和login時儲存在 session 的參數是否相同
	sess, err := impl.session(c)
	if err != nil {
		slog.Error("Fail to get session", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	// 向驗證伺服器交換token並取得正規化的身份資料
	identity, err := p.Exchange(c, provider.ExchangeParams{
		Code:          c.Query("code"),
		State:         c.Query("state"),
		ExpectedState: sess.Get(SESSION_KEY_REQUEST_STATE),
		ExpectedNonce: sess.Get(SESSION_KEY_REQUEST_NONCE),
		RedirectURL:   impl.callbackURL(providerName),
	})
	if errors.Is(err, oidc.ErrStateMismatch) || errors.Is(err, oidc.ErrNonceMismatch) {
		c.Status(http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Error("Fail to exchange token", slog.String("op", op), slog.String("provider", providerName), slog.Any("error", err))
		c.Status(http.StatusBadGateway)
		return
	}
	// 解析出請求中已登入的使用者(用於關聯使用者操作)
	sessionUserID := impl.currentUserID(c)
	// 將外部身份解析為本地使用者
	userID, err := impl.resolver.Resolve(c, identity, sessionUserID)
	if errors.Is(err, resolver.ErrInvalidProfile) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Profile has no usable email"})
		return
	}
	if err != nil {
		slog.Error("Fail to resolve identity", slog.String("op", op), slog.String("provider", providerName), slog.Any("error", err))
		c.Status(http.StatusBadGateway)
		return
	}
	// 取得使用者資訊以建立token
	user := models.User{ID: userID}
	if result := impl.db.First(&user); result.Error != nil {
		slog.Error("Fail to find resolved user", slog.String("op", op), slog.Any("error", result.Error))
		c.Status(http.StatusBadGateway)
		return
	}
	// 建立token
	token := jwt.NewWithClaims(&jwt.SigningMethodEd25519{}, JWT{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(impl.config.Auth.ExpireDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    impl.config.Auth.Issuer,
			Subject:   user.ID.String(),
			ID:        uuid.NewString(),
			Audience:  []string{impl.config.Auth.Audience},
		},
	})
	tokenString, err := token.SignedString(impl.config.Auth.PrivateKey)
	if err != nil {
		slog.Error("Fail to sign JWT", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.SetCookie(COOKIE_ACCESS_TOKEN, tokenString, int(impl.config.Auth.ExpireDuration/time.Second), "/", "", true, true)
	// 通知宿主平台登入成功，發佈失敗不影響登入
	if err := impl.producer.Publish(LoginEvent{
		UserID:    userID,
		Provider:  identity.Provider,
		SubjectID: identity.SubjectID,
		At:        time.Now(),
	}); err != nil {
		slog.Error("Fail to publish login event", slog.String("op", op), slog.Any("error", err))
	}
	// 清掉一次性的驗證參數後導回登入前的頁面
	redirectURL := sess.Get(SESSION_KEY_URL_BEFORE_LOGIN)
	if redirectURL == "" {
		redirectURL = impl.config.PublicURL
	}
	sess.Delete(SESSION_KEY_REQUEST_STATE)
	sess.Delete(SESSION_KEY_REQUEST_NONCE)
	sess.Delete(SESSION_KEY_URL_BEFORE_LOGIN)
	if err := sess.Save(); err != nil {
		slog.Warn("Fail to save session", slog.String("op", op), slog.Any("error", err))
	}
	c.Redirect(http.StatusFound, redirectURL)
}

// Revoke authentication token
// (GET /auth/logout)
func (impl *ServerImpl) GetAuthLogout(c *gin.Context) {
	// only clear the cookie without revoking the token
	c.SetCookie(COOKIE_ACCESS_TOKEN, "", -1, "/", "", true, true)
	c.Status(http.StatusOK)
}

// Get association status for every registered provider
// (GET /user/associations)
func (impl *ServerImpl) GetUserAssociations(c *gin.Context) {
	const op = "GetUserAssociations"
	userID := impl.currentUserID(c)
	if userID == uuid.Nil {
		c.Status(http.StatusUnauthorized)
		return
	}
	views, err := impl.resolver.DescribeAssociations(c, userID)
	if err != nil {
		slog.Error("Fail to describe associations", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusBadGateway)
		return
	}
	c.JSON(http.StatusOK, gin.H{"associations": views})
}

// Host account lifecycle webhook, unlinks every identity of a deleted account
// (DELETE /internal/users/{id})
func (impl *ServerImpl) DeleteInternalUser(c *gin.Context) {
	const op = "DeleteInternalUser"
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	// 清理是盡力而為，部分失敗只記錄，宿主的刪除流程不因此中斷
	if err := impl.resolver.OnAccountDeleted(c, userID); err != nil {
		slog.Error("Fail to clean up links for deleted user", slog.String("op", op), slog.String("userId", userID.String()), slog.Any("error", err))
	}
	c.Status(http.StatusNoContent)
}

// currentUserID 從 access token cookie 中解析出已登入的使用者，
// cookie 不存在或驗證失敗時回傳 uuid.Nil
func (impl *ServerImpl) currentUserID(c *gin.Context) uuid.UUID {
	tokenString, err := c.Cookie(COOKIE_ACCESS_TOKEN)
	if err != nil || tokenString == "" {
		return uuid.Nil
	}
	token, err := ParseAndValidateJWT(tokenString, impl.config.Auth.PrivateKey)
	if err != nil {
		return uuid.Nil
	}
	userID, err := uuid.Parse(token.Subject)
	if err != nil {
		return uuid.Nil
	}
	return userID
}

func (impl *ServerImpl) callbackURL(providerName string) string {
	return fmt.Sprintf("%s/auth/%s/callback", impl.config.PublicURL, providerName)
}

func generateID(prefix string) (string, error) {
	const op = "generateID"
	bytes := make([]byte, 20)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("[%s] Fail to generate unique id, err=%w", op, err)
	}
	return prefix + "_" + base64.URLEncoding.EncodeToString(bytes), nil
}
