package model

import (
	"errors"
	"time"
)

// UserType 用户类型
type UserType string

const (
	UserTypeAdmin  UserType = "admin"
	UserTypeWorker UserType = "worker"
)

// Valid 是否为已知用户类型
func (t UserType) Valid() bool {
	return t == UserTypeAdmin || t == UserTypeWorker
}

// UserModel 用户数据模型
type UserModel struct {
	Username     string    `gorm:"primaryKey;type:varchar(64)"`
	PasswordHash string    `gorm:"type:varchar(255);not null"`
	UserType     UserType  `gorm:"type:varchar(16);not null;index"`
	PhotoURL     string    `gorm:"type:varchar(512)"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName 指定表名
func (UserModel) TableName() string {
	return "users"
}

// Validate 验证用户模型
func (um *UserModel) Validate() error {
	if um.Username == "" {
		return errors.New("username is required")
	}
	if um.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if !um.UserType.Valid() {
		return errors.New("invalid user type")
	}
	return nil
}
