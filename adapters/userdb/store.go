// Package userdb 以 GORM 實作宿主使用者儲存層的介面。
// 帳號本體由論壇平台擁有，這裡只提供 resolver 需要的最小讀寫面。
package userdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"ssolink/models"
	"ssolink/resolver"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	return &Store{db: db}, nil
}

var _ resolver.UserStore = (*Store)(nil)

// GetUserIDByEmail 以 email 查詢使用者，空字串一律視為找不到
func (s *Store) GetUserIDByEmail(ctx context.Context, email string) (uuid.UUID, bool, error) {
	const op = "userdb.Store.GetUserIDByEmail"
	if email == "" {
		return uuid.Nil, false, nil
	}
	var user models.User
	result := s.db.WithContext(ctx).Where("email = ?", email).First(&user)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return uuid.Nil, false, nil
	}
	if result.Error != nil {
		return uuid.Nil, false, fmt.Errorf("[%s] Fail to query user, err=%w", op, result.Error)
	}
	return user.ID, true, nil
}

func (s *Store) CreateUser(ctx context.Context, username, email string) (uuid.UUID, error) {
	const op = "userdb.Store.CreateUser"
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("[%s] Fail to generate user id, err=%w", op, err)
	}
	user := models.User{
		ID:       id,
		Username: username,
		Email:    email,
	}
	if result := s.db.WithContext(ctx).Create(&user); result.Error != nil {
		return uuid.Nil, fmt.Errorf("[%s] Fail to create user, err=%w", op, result.Error)
	}
	return user.ID, nil
}

// SetProviderSubject 更新帳號上的提供者識別鏡像。
// 重新連結會把 subject 指向另一個帳號，所以先清掉其他帳號對同一個
// subject 的鏡像，再覆寫（或建立）自己帳號上的那一筆。
func (s *Store) SetProviderSubject(ctx context.Context, userID uuid.UUID, provider resolver.Provider, subjectID string) error {
	const op = "userdb.Store.SetProviderSubject"
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if result := tx.
			Where("provider = ? AND subject_id = ? AND user_id <> ?", provider, subjectID, userID).
			Delete(&models.UserIdentity{}); result.Error != nil {
			return result.Error
		}

		var identity models.UserIdentity
		result := tx.Where("provider = ? AND user_id = ?", provider, userID).First(&identity)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			identity = models.UserIdentity{
				ID:        id,
				Provider:  provider,
				UserID:    userID,
				SubjectID: subjectID,
			}
			return tx.Create(&identity).Error
		}
		if result.Error != nil {
			return result.Error
		}
		return tx.Model(&identity).Update("subject_id", subjectID).Error
	})
	if err != nil {
		return fmt.Errorf("[%s] Fail to set provider subject, err=%w", op, err)
	}
	return nil
}

func (s *Store) GetProviderSubject(ctx context.Context, userID uuid.UUID, provider resolver.Provider) (string, bool, error) {
	const op = "userdb.Store.GetProviderSubject"
	var identity models.UserIdentity
	result := s.db.WithContext(ctx).Where("provider = ? AND user_id = ?", provider, userID).First(&identity)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if result.Error != nil {
		return "", false, fmt.Errorf("[%s] Fail to query provider subject, err=%w", op, result.Error)
	}
	return identity.SubjectID, true, nil
}

func (s *Store) DeleteProviderSubject(ctx context.Context, userID uuid.UUID, provider resolver.Provider) error {
	const op = "userdb.Store.DeleteProviderSubject"
	result := s.db.WithContext(ctx).
		Where("provider = ? AND user_id = ?", provider, userID).
		Delete(&models.UserIdentity{})
	if result.Error != nil {
		return fmt.Errorf("[%s] Fail to delete provider subject, err=%w", op, result.Error)
	}
	return nil
}
