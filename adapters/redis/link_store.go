package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ssolink/resolver"
)

// LinkStore 實現了 resolver.LinkStore 介面，
// 以每個提供者一個 Redis hash 的方式保存 subject id 到 user id 的對應。
// 這份對應是身份連結的權威來源，hash 欄位即 subject id。
type LinkStore struct {
	client  *redis.Client
	options LinkStoreOptions
}

// LinkStoreOptions 定義了 LinkStore 的配置選項
type LinkStoreOptions struct {
	Prefix string
}

type LinkStoreOption func(*LinkStoreOptions)

// WithLinkStorePrefix 設定 LinkStore 的 key 前綴
func WithLinkStorePrefix(prefix string) LinkStoreOption {
	return func(o *LinkStoreOptions) {
		o.Prefix = prefix
	}
}

// NewLinkStore 建立一個新的 LinkStore 實例
func NewLinkStore(client *redis.Client, opts ...LinkStoreOption) (*LinkStore, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	options := LinkStoreOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	return &LinkStore{
		client:  client,
		options: options,
	}, nil
}

var _ resolver.LinkStore = (*LinkStore)(nil)

func (s *LinkStore) key(provider resolver.Provider) string {
	return s.options.Prefix + "links:" + string(provider)
}

// Get 查詢 subject id 對應的 user id，欄位不存在時回傳 (uuid.Nil, false, nil)
func (s *LinkStore) Get(ctx context.Context, provider resolver.Provider, subjectID string) (uuid.UUID, bool, error) {
	const op = "redis.LinkStore.Get"
	value, err := s.client.HGet(ctx, s.key(provider), subjectID).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("%s: failed to get link field: %w", op, err)
	}
	userID, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("%s: corrupted link value %q: %w", op, value, err)
	}
	return userID, true, nil
}

// Put 寫入對應，同一個 subject id 已存在時直接覆寫
func (s *LinkStore) Put(ctx context.Context, provider resolver.Provider, subjectID string, userID uuid.UUID) error {
	const op = "redis.LinkStore.Put"
	if err := s.client.HSet(ctx, s.key(provider), subjectID, userID.String()).Err(); err != nil {
		return fmt.Errorf("%s: failed to set link field: %w", op, err)
	}
	return nil
}

// Delete 刪除對應，欄位不存在時也回傳成功
func (s *LinkStore) Delete(ctx context.Context, provider resolver.Provider, subjectID string) error {
	const op = "redis.LinkStore.Delete"
	if err := s.client.HDel(ctx, s.key(provider), subjectID).Err(); err != nil {
		return fmt.Errorf("%s: failed to delete link field: %w", op, err)
	}
	return nil
}
