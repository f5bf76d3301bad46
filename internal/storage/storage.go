package storage

import "errors"

var (
	ErrUserExists   = errors.New("user already exists")
	ErrUserNotFound = errors.New("user not found")
	ErrorNoSuchKey  = errors.New("no such key")
)

var (
	ErrPageNotFound    = errors.New("page not found")
	ErrBlockNotFound   = errors.New("block not found")
	ErrVersionConflict = errors.New("publication version conflict")
)

var (
	ErrFileNotFound = errors.New("file not found")
)
