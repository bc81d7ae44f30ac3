package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// ProviderMeta 描述一個已註冊提供者在關聯畫面上的顯示資訊
type ProviderMeta struct {
	Provider    Provider
	DisplayName string
	Icon        string
	LoginURL    string
}

// AssociationView 是帳號設定頁用的唯讀投影，描述帳號與提供者的連結狀態
type AssociationView struct {
	Associated bool   `json:"associated"`
	Provider   string `json:"provider"`
	Name       string `json:"name"`
	Icon       string `json:"icon"`
	URL        string `json:"url,omitempty"`
}

type resolverOptions struct {
	logger        *slog.Logger
	locker        LockerFactory
	emailOptional map[Provider]bool
}

type Option func(*resolverOptions)

// WithLogger 設定日誌記錄器
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolverOptions) {
		o.logger = logger
	}
}

// WithSubjectLocker 設定首次連結時使用的鎖工廠
// 未設定時，兩個同時進行的首次登入會以最後寫入者為準
func WithSubjectLocker(factory LockerFactory) Option {
	return func(o *resolverOptions) {
		o.locker = factory
	}
}

// WithOptionalEmail 將指定提供者的 email 設為非必要
// 預設所有提供者都要求可用的 email，缺少時拒絕登入而不是合成假信箱
func WithOptionalEmail(provider Provider) Option {
	return func(o *resolverOptions) {
		o.emailOptional[provider] = true
	}
}

// Resolver 將外部身份解析為本地使用者 ID，
// 依序套用重新連結、既有連結、email 合併、建立帳號四種策略
type Resolver struct {
	links     LinkStore
	users     UserStore
	providers []ProviderMeta
	options   resolverOptions
}

func NewResolver(links LinkStore, users UserStore, providers []ProviderMeta, opts ...Option) (*Resolver, error) {
	if links == nil {
		return nil, errors.New("link store cannot be nil")
	}
	if users == nil {
		return nil, errors.New("user store cannot be nil")
	}

	// 默認選項
	options := resolverOptions{
		logger:        slog.Default(),
		emailOptional: make(map[Provider]bool),
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &Resolver{
		links:     links,
		users:     users,
		providers: providers,
		options:   options,
	}, nil
}

// Resolve 決定一次登入嘗試要以哪個本地使用者身份完成。
// sessionUserID 不為 uuid.Nil 時代表請求已帶有登入中的使用者，
// 此時直接將外部身份連結到該使用者（覆寫既有連結）並回傳。
// 否則依序嘗試：既有連結、email 合併、建立新帳號，
// 三種後備路徑成功後都會寫入新的連結再回傳。
func (r *Resolver) Resolve(ctx context.Context, identity ExternalIdentity, sessionUserID uuid.UUID) (uuid.UUID, error) {
	const op = "Resolver.Resolve"
	if identity.SubjectID == "" {
		return uuid.Nil, fmt.Errorf("[%s] Missing subject id, err=%w", op, ErrInvalidProfile)
	}

	// 1. 已登入的使用者要將新的提供者身份掛到自己帳號上，不做任何 profile 檢查
	if sessionUserID != uuid.Nil {
		if err := r.persistLink(ctx, identity, sessionUserID); err != nil {
			return uuid.Nil, fmt.Errorf("[%s] Fail to relink identity, err=%w", op, err)
		}
		r.options.logger.Info("identity relinked to session user",
			slog.String("provider", string(identity.Provider)),
			slog.String("userId", sessionUserID.String()))
		return sessionUserID, nil
	}

	// 2. 查詢既有連結，命中時不寫入任何資料
	userID, found, err := r.links.Get(ctx, identity.Provider, identity.SubjectID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("[%s] Fail to look up link, err=%w: %w", op, ErrStoreUnavailable, err)
	}
	if found {
		return userID, nil
	}

	// 3. 首次連結：有設定鎖工廠時以 subject id 為單位序列化，
	//    取得鎖後重新查詢一次連結，避免兩個同時的首次登入各自建立帳號
	if r.options.locker != nil {
		locker := r.options.locker(lockKey(identity))
		lockCtx, err := locker.Lock(ctx)
		if err != nil {
			return uuid.Nil, fmt.Errorf("[%s] Fail to lock subject, err=%w: %w", op, ErrStoreUnavailable, err)
		}
		defer locker.Unlock()
		ctx = lockCtx

		userID, found, err = r.links.Get(ctx, identity.Provider, identity.SubjectID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("[%s] Fail to look up link, err=%w: %w", op, ErrStoreUnavailable, err)
		}
		if found {
			return userID, nil
		}
	}

	userID, err = r.adoptOrCreate(ctx, identity)
	if err != nil {
		return uuid.Nil, fmt.Errorf("[%s] err=%w", op, err)
	}

	// 6. 三種後備路徑都要在回傳前寫入新的連結
	if err := r.persistLink(ctx, identity, userID); err != nil {
		return uuid.Nil, fmt.Errorf("[%s] Fail to persist link, err=%w", op, err)
	}
	return userID, nil
}

// adoptOrCreate 執行 email 擷取、email 合併與建立帳號三個步驟
func (r *Resolver) adoptOrCreate(ctx context.Context, identity ExternalIdentity) (uuid.UUID, error) {
	// 4. 擷取 email；提供者要求 email 而擷取失敗時拒絕登入，不合成替代信箱
	email, ok := identity.PrimaryEmail()
	if !ok && !r.options.emailOptional[identity.Provider] {
		return uuid.Nil, fmt.Errorf("no usable email in profile: %w", ErrInvalidProfile)
	}

	// 5a. 以 email 合併到既有帳號；合併只以 email 相等為依據
	if ok {
		userID, found, err := r.users.GetUserIDByEmail(ctx, email)
		if err != nil {
			return uuid.Nil, fmt.Errorf("fail to look up user by email, err=%w: %w", ErrStoreUnavailable, err)
		}
		if found {
			r.options.logger.Info("identity merged into existing account",
				slog.String("provider", string(identity.Provider)),
				slog.String("userId", userID.String()))
			return userID, nil
		}
	}

	// 5b. 建立新帳號
	userID, err := r.users.CreateUser(ctx, usernameFor(identity, email), email)
	if err != nil {
		return uuid.Nil, fmt.Errorf("fail to create user, err=%w: %w", ErrCreateFailed, err)
	}
	r.options.logger.Info("account provisioned for identity",
		slog.String("provider", string(identity.Provider)),
		slog.String("userId", userID.String()))
	return userID, nil
}

// persistLink 寫入權威的 link store，成功後更新帳號上的鏡像欄位。
// 兩筆寫入不在同一個交易內，鏡像落後的空窗由下一次連結寫入補齊。
func (r *Resolver) persistLink(ctx context.Context, identity ExternalIdentity, userID uuid.UUID) error {
	if err := r.links.Put(ctx, identity.Provider, identity.SubjectID, userID); err != nil {
		return fmt.Errorf("fail to put link, err=%w: %w", ErrStoreUnavailable, err)
	}
	if err := r.users.SetProviderSubject(ctx, userID, identity.Provider, identity.SubjectID); err != nil {
		return fmt.Errorf("fail to mirror link on account, err=%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// DescribeAssociations 回傳指定使用者對每個已註冊提供者的連結狀態，
// 未連結的項目一律帶有可供發起連結的 URL
func (r *Resolver) DescribeAssociations(ctx context.Context, userID uuid.UUID) ([]AssociationView, error) {
	const op = "Resolver.DescribeAssociations"
	views := make([]AssociationView, 0, len(r.providers))
	for _, meta := range r.providers {
		_, linked, err := r.users.GetProviderSubject(ctx, userID, meta.Provider)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to read provider subject, err=%w: %w", op, ErrStoreUnavailable, err)
		}
		view := AssociationView{
			Associated: linked,
			Provider:   string(meta.Provider),
			Name:       meta.DisplayName,
			Icon:       meta.Icon,
		}
		if !linked {
			view.URL = meta.LoginURL
		}
		views = append(views, view)
	}
	return views, nil
}

// OnAccountDeleted 在宿主刪除帳號時清掉它的所有連結。
// 清理是盡力而為：單一提供者失敗不會中斷其餘清理，錯誤彙整後回傳給呼叫端記錄。
// 重複呼叫是安全的，第二次呼叫時鏡像欄位已不存在，直接略過。
func (r *Resolver) OnAccountDeleted(ctx context.Context, userID uuid.UUID) error {
	const op = "Resolver.OnAccountDeleted"
	var errs []error
	for _, meta := range r.providers {
		subjectID, found, err := r.users.GetProviderSubject(ctx, userID, meta.Provider)
		if err != nil {
			errs = append(errs, fmt.Errorf("[%s] Fail to read provider subject, provider=%s, err=%w", op, meta.Provider, err))
			continue
		}
		if !found {
			continue
		}
		if err := r.links.Delete(ctx, meta.Provider, subjectID); err != nil {
			errs = append(errs, fmt.Errorf("[%s] Fail to delete link, provider=%s, err=%w", op, meta.Provider, err))
			continue
		}
		if err := r.users.DeleteProviderSubject(ctx, userID, meta.Provider); err != nil {
			errs = append(errs, fmt.Errorf("[%s] Fail to delete mirrored subject, provider=%s, err=%w", op, meta.Provider, err))
		}
	}
	return errors.Join(errs...)
}

func lockKey(identity ExternalIdentity) string {
	return string(identity.Provider) + ":" + identity.SubjectID
}

// usernameFor 決定新帳號的顯示名稱：
// 優先使用提供者給的顯示名稱，其次是 email 的本地部分，最後退回 subject id
func usernameFor(identity ExternalIdentity, email string) string {
	if identity.DisplayName != "" {
		return identity.DisplayName
	}
	if local, _, found := strings.Cut(email, "@"); found && local != "" {
		return local
	}
	return identity.SubjectID
}
