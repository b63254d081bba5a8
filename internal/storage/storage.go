package storage

import "errors"

var (
	ErrUserExists       = errors.New("user already exists")
	ErrUserNotFound     = errors.New("user not found")
	ErrClientNotFound   = errors.New("client not found")
	ErrAuthCodeNotFound = errors.New("authorization code not found")
	ErrTokenNotFound    = errors.New("refresh token not found")
)
