package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/mautops/dispatch-gin/internal/model"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists 用户已存在
	ErrUserExists = errors.New("user already exists")
)

// UserRepository 用户仓储接口
type UserRepository interface {
	Create(ctx context.Context, user *model.UserModel) error
	FindByUsername(ctx context.Context, username string) (*model.UserModel, error)
	ListByType(ctx context.Context, userType model.UserType) ([]*model.UserModel, error)
	UpdatePhoto(ctx context.Context, username, photoURL string) error
}

// userRepository 用户仓储实现
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create 创建用户
func (r *userRepository) Create(ctx context.Context, user *model.UserModel) error {
	if err := user.Validate(); err != nil {
		return err
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&model.UserModel{}).Where("username = ?", user.Username).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrUserExists
	}

	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindByUsername 根据用户名查找用户
func (r *userRepository) FindByUsername(ctx context.Context, username string) (*model.UserModel, error) {
	var user model.UserModel
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListByType 按类型列出用户
func (r *userRepository) ListByType(ctx context.Context, userType model.UserType) ([]*model.UserModel, error) {
	var users []*model.UserModel
	err := r.db.WithContext(ctx).Where("user_type = ?", userType).Order("username ASC").Find(&users).Error
	return users, err
}

// UpdatePhoto 更新头像地址
func (r *userRepository) UpdatePhoto(ctx context.Context, username, photoURL string) error {
	result := r.db.WithContext(ctx).Model(&model.UserModel{}).Where("username = ?", username).Update("photo_url", photoURL)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
