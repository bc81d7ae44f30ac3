package api

import (
	"time"

	"github.com/google/uuid"

	"ssolink/resolver"
)

// LoginEvent 是發佈到宿主平台 stream 的登入成功事件，
// 宿主消費後據此建立自己的登入狀態
type LoginEvent struct {
	UserID    uuid.UUID
	Provider  resolver.Provider
	SubjectID string
	At        time.Time
}
