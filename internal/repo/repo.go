package repo

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUserAlreadyExist = errors.New("user already exist")
	ErrRefreshNotFound  = errors.New("refresh token not found")
	ErrDuplicateJTI     = errors.New("duplicate refresh token jti")
)

// GormRepo holds both the account store and the refresh-token ledger.
type GormRepo struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *GormRepo {
	return &GormRepo{DB: db}
}
