package model

import "errors"

// 各层共用的错误类型
var (
	ErrInvalidCode      = errors.New("list code must be at least 3 characters")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("item not found")
	ErrNoList           = errors.New("no list joined")
	ErrUnknownPlatform  = errors.New("platform is not registered")
)
