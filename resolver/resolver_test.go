package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLinkStore 以 map 模擬 link store，並記錄寫入次數供測試斷言
type fakeLinkStore struct {
	links   map[string]uuid.UUID
	puts    int
	deletes int
	getErr  error
	putErr  error
	delErr  error
}

func newFakeLinkStore() *fakeLinkStore {
	return &fakeLinkStore{links: make(map[string]uuid.UUID)}
}

func linkKeyOf(provider Provider, subjectID string) string {
	return string(provider) + ":" + subjectID
}

func (f *fakeLinkStore) Get(_ context.Context, provider Provider, subjectID string) (uuid.UUID, bool, error) {
	if f.getErr != nil {
		return uuid.Nil, false, f.getErr
	}
	id, ok := f.links[linkKeyOf(provider, subjectID)]
	return id, ok, nil
}

func (f *fakeLinkStore) Put(_ context.Context, provider Provider, subjectID string, userID uuid.UUID) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.puts++
	f.links[linkKeyOf(provider, subjectID)] = userID
	return nil
}

func (f *fakeLinkStore) Delete(_ context.Context, provider Provider, subjectID string) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.deletes++
	delete(f.links, linkKeyOf(provider, subjectID))
	return nil
}

// fakeUserStore 以 map 模擬宿主的使用者儲存層
type fakeUserStore struct {
	byEmail   map[string]uuid.UUID
	subjects  map[string]string // userID:provider -> subjectID
	created   int
	createErr error
	lookupErr error
	setErr    error
	getSubErr error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		byEmail:  make(map[string]uuid.UUID),
		subjects: make(map[string]string),
	}
}

func subjectKeyOf(userID uuid.UUID, provider Provider) string {
	return userID.String() + ":" + string(provider)
}

func (f *fakeUserStore) GetUserIDByEmail(_ context.Context, email string) (uuid.UUID, bool, error) {
	if f.lookupErr != nil {
		return uuid.Nil, false, f.lookupErr
	}
	id, ok := f.byEmail[email]
	return id, ok, nil
}

func (f *fakeUserStore) CreateUser(_ context.Context, _, email string) (uuid.UUID, error) {
	if f.createErr != nil {
		return uuid.Nil, f.createErr
	}
	f.created++
	id := uuid.New()
	if email != "" {
		f.byEmail[email] = id
	}
	return id, nil
}

func (f *fakeUserStore) SetProviderSubject(_ context.Context, userID uuid.UUID, provider Provider, subjectID string) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.subjects[subjectKeyOf(userID, provider)] = subjectID
	return nil
}

func (f *fakeUserStore) GetProviderSubject(_ context.Context, userID uuid.UUID, provider Provider) (string, bool, error) {
	if f.getSubErr != nil {
		return "", false, f.getSubErr
	}
	subjectID, ok := f.subjects[subjectKeyOf(userID, provider)]
	return subjectID, ok, nil
}

func (f *fakeUserStore) DeleteProviderSubject(_ context.Context, userID uuid.UUID, provider Provider) error {
	delete(f.subjects, subjectKeyOf(userID, provider))
	return nil
}

var testMetas = []ProviderMeta{
	{Provider: ProviderAuth0, DisplayName: "Auth0", Icon: "fa-star", LoginURL: "https://forum.example.com/auth/auth0/login"},
	{Provider: ProviderGitHub, DisplayName: "GitHub", Icon: "fa-github", LoginURL: "https://forum.example.com/auth/github/login"},
}

func newTestResolver(t *testing.T, links LinkStore, users UserStore, opts ...Option) *Resolver {
	t.Helper()
	r, err := NewResolver(links, users, testMetas, opts...)
	require.NoError(t, err)
	return r
}

func githubIdentity(subjectID, email string) ExternalIdentity {
	identity := ExternalIdentity{
		Provider:    ProviderGitHub,
		SubjectID:   subjectID,
		DisplayName: "octo",
	}
	if email != "" {
		identity.Emails = []EmailCandidate{{Address: email, Primary: true}}
	}
	return identity
}

func TestNewResolver(t *testing.T) {
	links := newFakeLinkStore()
	users := newFakeUserStore()

	t.Run("nil link store", func(t *testing.T) {
		_, err := NewResolver(nil, users, testMetas)
		assert.Error(t, err)
	})

	t.Run("nil user store", func(t *testing.T) {
		_, err := NewResolver(links, nil, testMetas)
		assert.Error(t, err)
	})

	t.Run("valid", func(t *testing.T) {
		r, err := NewResolver(links, users, testMetas)
		assert.NoError(t, err)
		assert.NotNil(t, r)
	})
}

func TestResolve_SessionRelink(t *testing.T) {
	links := newFakeLinkStore()
	users := newFakeUserStore()
	r := newTestResolver(t, links, users)

	first := uuid.New()
	second := uuid.New()
	identity := githubIdentity("gh1", "")

	// 已登入的使用者直接連結，不需要可用的 email
	got, err := r.Resolve(context.Background(), identity, first)
	require.NoError(t, err)
	assert.Equal(t, first, got)
	assert.Equal(t, first, links.links[linkKeyOf(ProviderGitHub, "gh1")])

	// 同一個 subject id 連到另一個使用者時，後者覆寫前者
	got, err = r.Resolve(context.Background(), identity, second)
	require.NoError(t, err)
	assert.Equal(t, second, got)
	assert.Equal(t, second, links.links[linkKeyOf(ProviderGitHub, "gh1")])
	assert.Zero(t, users.created)

	// 鏡像欄位跟著更新
	assert.Equal(t, "gh1", users.subjects[subjectKeyOf(second, ProviderGitHub)])
}

func TestResolve_LinkHit(t *testing.T) {
	links := newFakeLinkStore()
	users := newFakeUserStore()
	r := newTestResolver(t, links, users)

	existing := uuid.New()
	links.links[linkKeyOf(ProviderGitHub, "gh1")] = existing

	got, err := r.Resolve(context.Background(), githubIdentity("gh1", "a@x.com"), uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, existing, got)
	// 命中路徑不應有任何寫入
	assert.Zero(t, links.puts)
	assert.Zero(t, users.created)
}

func TestResolve_EmailMerge(t *testing.T) {
	links := newFakeLinkStore()
	users := newFakeUserStore()
	r := newTestResolver(t, links, users)

	existing := uuid.New()
	users.byEmail["a@x.com"] = existing

	got, err := r.Resolve(context.Background(), githubIdentity("gh1", "a@x.com"), uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, existing, got)
	assert.Equal(t, existing, links.links[linkKeyOf(ProviderGitHub, "gh1")])
	assert.Equal(t, 1, links.puts)
	assert.Zero(t, users.created)
}

func TestResolve_Provision(t *testing.T) {
	links := newFakeLinkStore()
	users := newFakeUserStore()
	r := newTestResolver(t, links, users)

	identity := ExternalIdentity{
		Provider:    ProviderAuth0,
		SubjectID:   "a0-9",
		Emails:      []EmailCandidate{{Address: "new@x.com"}},
		DisplayName: "newuser",
	}
	got, err := r.Resolve(context.Background(), identity, uuid.Nil)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, got)
	assert.Equal(t, 1, users.created)
	assert.Equal(t, got, links.links[linkKeyOf(ProviderAuth0, "a0-9")])

	// 第二次登入走連結命中路徑，不再建立帳號
	again, err := r.Resolve(context.Background(), identity, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, 1, users.created)
	assert.Equal(t, 1, links.puts)
}

func TestResolve_InvalidProfile(t *testing.T) {
	tests := []struct {
		name     string
		identity ExternalIdentity
	}{
		{
			name:     "no email candidates",
			identity: ExternalIdentity{Provider: ProviderGitHub, SubjectID: "gh1"},
		},
		{
			name: "blank email candidates",
			identity: ExternalIdentity{
				Provider:  ProviderGitHub,
				SubjectID: "gh1",
				Emails:    []EmailCandidate{{Address: ""}, {Address: "", Primary: true}},
			},
		},
		{
			name:     "missing subject id",
			identity: ExternalIdentity{Provider: ProviderGitHub, Emails: []EmailCandidate{{Address: "a@x.com"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links := newFakeLinkStore()
			users := newFakeUserStore()
			r := newTestResolver(t, links, users)

			_, err := r.Resolve(context.Background(), tt.identity, uuid.Nil)
			assert.ErrorIs(t, err, ErrInvalidProfile)
			// 失敗的登入不留下任何寫入
			assert.Zero(t, links.puts)
			assert.Zero(t, users.created)
			assert.Empty(t, users.subjects)
		})
	}
}

func TestResolve_OptionalEmail(t *testing.T) {
	links := newFakeLinkStore()
	users := newFakeUserStore()
	r := newTestResolver(t, links, users, WithOptionalEmail(ProviderGitHub))

	// email 設為非必要時，缺少 email 直接建立帳號而不是拒絕
	got, err := r.Resolve(context.Background(), githubIdentity("gh1", ""), uuid.Nil)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, got)
	assert.Equal(t, 1, users.created)
}

func TestResolve_StoreErrors(t *testing.T) {
	identity := githubIdentity("gh1", "a@x.com")

	t.Run("link lookup fails", func(t *testing.T) {
		links := newFakeLinkStore()
		links.getErr = errors.New("connection refused")
		r := newTestResolver(t, links, newFakeUserStore())

		_, err := r.Resolve(context.Background(), identity, uuid.Nil)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("email lookup fails", func(t *testing.T) {
		users := newFakeUserStore()
		users.lookupErr = errors.New("connection refused")
		r := newTestResolver(t, newFakeLinkStore(), users)

		_, err := r.Resolve(context.Background(), identity, uuid.Nil)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("create fails", func(t *testing.T) {
		users := newFakeUserStore()
		users.createErr = errors.New("quota exceeded")
		r := newTestResolver(t, newFakeLinkStore(), users)

		_, err := r.Resolve(context.Background(), identity, uuid.Nil)
		assert.ErrorIs(t, err, ErrCreateFailed)
	})

	t.Run("link write fails", func(t *testing.T) {
		links := newFakeLinkStore()
		links.putErr = errors.New("read only replica")
		r := newTestResolver(t, links, newFakeUserStore())

		_, err := r.Resolve(context.Background(), identity, uuid.Nil)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})
}

// fakeLocker 記錄鎖的取得與釋放，並可在取得鎖的當下插入另一個寫入者
type fakeLocker struct {
	locked   int
	unlocked int
	onLock   func()
}

func (f *fakeLocker) Lock(ctx context.Context) (context.Context, error) {
	f.locked++
	if f.onLock != nil {
		f.onLock()
	}
	return ctx, nil
}

func (f *fakeLocker) Unlock() (bool, error) {
	f.unlocked++
	return true, nil
}

func TestResolve_SubjectLocker(t *testing.T) {
	links := newFakeLinkStore()
	users := newFakeUserStore()

	winner := uuid.New()
	locker := &fakeLocker{
		// 模擬另一個請求在本請求等鎖期間完成了首次連結
		onLock: func() {
			links.links[linkKeyOf(ProviderGitHub, "gh1")] = winner
		},
	}
	r := newTestResolver(t, links, users, WithSubjectLocker(func(key string) Locker {
		assert.Equal(t, "github:gh1", key)
		return locker
	}))

	got, err := r.Resolve(context.Background(), githubIdentity("gh1", "a@x.com"), uuid.Nil)
	require.NoError(t, err)
	// 鎖內的第二次查詢看見對手的連結，不再建立帳號
	assert.Equal(t, winner, got)
	assert.Zero(t, users.created)
	assert.Equal(t, 1, locker.locked)
	assert.Equal(t, 1, locker.unlocked)
}

func TestDescribeAssociations(t *testing.T) {
	links := newFakeLinkStore()
	users := newFakeUserStore()
	r := newTestResolver(t, links, users)

	userID := uuid.New()
	users.subjects[subjectKeyOf(userID, ProviderGitHub)] = "gh1"

	views, err := r.DescribeAssociations(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, views, 2)

	assert.False(t, views[0].Associated)
	assert.Equal(t, "Auth0", views[0].Name)
	assert.NotEmpty(t, views[0].URL)

	assert.True(t, views[1].Associated)
	assert.Equal(t, "GitHub", views[1].Name)
	assert.Empty(t, views[1].URL)

	t.Run("store read failure propagates", func(t *testing.T) {
		users.getSubErr = errors.New("connection refused")
		defer func() { users.getSubErr = nil }()

		_, err := r.DescribeAssociations(context.Background(), userID)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})
}

func TestOnAccountDeleted(t *testing.T) {
	links := newFakeLinkStore()
	users := newFakeUserStore()
	r := newTestResolver(t, links, users)

	userID := uuid.New()
	got, err := r.Resolve(context.Background(), githubIdentity("gh1", "a@x.com"), userID)
	require.NoError(t, err)
	require.Equal(t, userID, got)

	require.NoError(t, r.OnAccountDeleted(context.Background(), userID))
	assert.Empty(t, links.links)
	assert.Empty(t, users.subjects)

	// 重複呼叫是 no-op，不是錯誤
	require.NoError(t, r.OnAccountDeleted(context.Background(), userID))
	assert.Equal(t, 1, links.deletes)

	t.Run("delete failure is reported", func(t *testing.T) {
		links := newFakeLinkStore()
		users := newFakeUserStore()
		r := newTestResolver(t, links, users)

		userID := uuid.New()
		users.subjects[subjectKeyOf(userID, ProviderGitHub)] = "gh1"
		links.delErr = errors.New("connection refused")

		err := r.OnAccountDeleted(context.Background(), userID)
		assert.Error(t, err)
		// 鏡像欄位保留，下一次清理還找得到要刪的連結
		assert.Equal(t, "gh1", users.subjects[subjectKeyOf(userID, ProviderGitHub)])
	})
}
