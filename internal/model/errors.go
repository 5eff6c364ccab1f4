package model

import "errors"

var (
	// ErrNotFound 表示记录不存在，或不属于调用方。
	ErrNotFound = errors.New("not found")
	// ErrDuplicateUsername 表示用户名已被注册。
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrInvalidCredentials 表示用户名或密码错误。
	ErrInvalidCredentials = errors.New("invalid credentials")
)
