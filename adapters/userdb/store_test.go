package userdb

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ssolink/models"
	"ssolink/resolver"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.UserIdentity{}))

	store, err := NewStore(db)
	require.NoError(t, err)
	return store
}

func TestNewStore(t *testing.T) {
	_, err := NewStore(nil)
	assert.Error(t, err)
}

func TestStore_CreateAndLookupByEmail(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	id, err := store.CreateUser(ctx, "octo", "a@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	got, found, err := store.GetUserIDByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, id, got)

	_, found, err = store.GetUserIDByEmail(ctx, "missing@x.com")
	require.NoError(t, err)
	assert.False(t, found)

	// 空 email 一律視為找不到，避免比對到沒有 email 的帳號
	_, err = store.CreateUser(ctx, "noemail", "")
	require.NoError(t, err)
	_, found, err = store.GetUserIDByEmail(ctx, "")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_ProviderSubject(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	userID, err := store.CreateUser(ctx, "octo", "a@x.com")
	require.NoError(t, err)

	// 未設定時讀不到
	_, found, err := store.GetProviderSubject(ctx, userID, resolver.ProviderGitHub)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.SetProviderSubject(ctx, userID, resolver.ProviderGitHub, "gh1"))
	subject, found, err := store.GetProviderSubject(ctx, userID, resolver.ProviderGitHub)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "gh1", subject)

	// 同一個提供者重複設定是覆寫，不會累積多筆
	require.NoError(t, store.SetProviderSubject(ctx, userID, resolver.ProviderGitHub, "gh2"))
	subject, found, err = store.GetProviderSubject(ctx, userID, resolver.ProviderGitHub)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "gh2", subject)

	// 不同提供者互不影響
	_, found, err = store.GetProviderSubject(ctx, userID, resolver.ProviderAuth0)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_SetProviderSubject_Repoint(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	first, err := store.CreateUser(ctx, "first", "first@x.com")
	require.NoError(t, err)
	second, err := store.CreateUser(ctx, "second", "second@x.com")
	require.NoError(t, err)

	require.NoError(t, store.SetProviderSubject(ctx, first, resolver.ProviderGitHub, "gh1"))
	// 同一個 subject 改連到另一個帳號時，舊帳號的鏡像被清掉
	require.NoError(t, store.SetProviderSubject(ctx, second, resolver.ProviderGitHub, "gh1"))

	_, found, err := store.GetProviderSubject(ctx, first, resolver.ProviderGitHub)
	require.NoError(t, err)
	assert.False(t, found)

	subject, found, err := store.GetProviderSubject(ctx, second, resolver.ProviderGitHub)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "gh1", subject)
}

func TestStore_DeleteProviderSubject(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	userID, err := store.CreateUser(ctx, "octo", "a@x.com")
	require.NoError(t, err)
	require.NoError(t, store.SetProviderSubject(ctx, userID, resolver.ProviderGitHub, "gh1"))

	require.NoError(t, store.DeleteProviderSubject(ctx, userID, resolver.ProviderGitHub))
	_, found, err := store.GetProviderSubject(ctx, userID, resolver.ProviderGitHub)
	require.NoError(t, err)
	assert.False(t, found)

	// 重複刪除視為成功
	require.NoError(t, store.DeleteProviderSubject(ctx, userID, resolver.ProviderGitHub))
}
