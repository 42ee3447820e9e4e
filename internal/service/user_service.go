package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/mautops/dispatch-gin/internal/config"
	"github.com/mautops/dispatch-gin/internal/model"
	"github.com/mautops/dispatch-gin/internal/repository"
	"github.com/mautops/dispatch-gin/internal/utils"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidCredentials 用户名或密码错误
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUserExists 用户已存在
	ErrUserExists = repository.ErrUserExists
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = repository.ErrUserNotFound
)

// TokenIssuer 签发登录 token
type TokenIssuer interface {
	Issue(username, role string) (string, time.Time, error)
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	// 用户名同时作为存储路径的一段,不能包含路径分隔符
	Username string         `json:"username" binding:"required" validate:"required,max=64,excludesall=/.#$[]"`
	Password string         `json:"password" binding:"required" validate:"required,min=6,max=72"`
	UserType model.UserType `json:"userType" binding:"required" validate:"required,oneof=admin worker"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UserInfo 用户信息
type UserInfo struct {
	Username string         `json:"username"`
	UserType model.UserType `json:"userType"`
	PhotoURL string         `json:"photoUrl,omitempty"`
	Online   bool           `json:"online"`
}

// LoginResponse 登录结果
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      UserInfo  `json:"user"`
}

// UserService 用户服务接口
type UserService interface {
	Register(ctx context.Context, req *RegisterRequest) (*UserInfo, error)
	Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error)
	Get(ctx context.Context, username string) (*UserInfo, error)
	ListWorkers(ctx context.Context) ([]*UserInfo, error)
	UploadPhoto(ctx context.Context, username string, r io.Reader) (*UserInfo, error)
}

type userService struct {
	users  repository.UserRepository
	tokens TokenIssuer
	media  config.MediaConfig
}

// NewUserService 创建用户服务
func NewUserService(users repository.UserRepository, tokens TokenIssuer, media config.MediaConfig) UserService {
	return &userService{users: users, tokens: tokens, media: media}
}

func toUserInfo(u *model.UserModel) *UserInfo {
	return &UserInfo{Username: u.Username, UserType: u.UserType, PhotoURL: u.PhotoURL}
}

// Register 注册用户,密码以 bcrypt 哈希保存
func (s *userService) Register(ctx context.Context, req *RegisterRequest) (*UserInfo, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: empty request", ErrInvalidInput)
	}
	req.Username = strings.TrimSpace(req.Username)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	hash, err := utils.HashPassword(req.Password)
	if errors.Is(err, utils.ErrPasswordTooLong) {
		// validator 按字符计数,多字节密码可能超出字节上限
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &model.UserModel{
		Username:     req.Username,
		PasswordHash: hash,
		UserType:     req.UserType,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"username":  user.Username,
		"user_type": user.UserType,
	}).Info("user registered")
	return toUserInfo(user), nil
}

// Login 校验密码并签发 token
func (s *userService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	if req == nil || req.Username == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !utils.VerifyPassword(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user.Username, string(user.UserType))
	if err != nil {
		return nil, err
	}
	return &LoginResponse{Token: token, ExpiresAt: expiresAt, User: *toUserInfo(user)}, nil
}

// Get 获取用户信息
func (s *userService) Get(ctx context.Context, username string) (*UserInfo, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return toUserInfo(user), nil
}

// ListWorkers 列出所有工人
func (s *userService) ListWorkers(ctx context.Context) ([]*UserInfo, error) {
	users, err := s.users.ListByType(ctx, model.UserTypeWorker)
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	infos := make([]*UserInfo, 0, len(users))
	for _, u := range users {
		infos = append(infos, toUserInfo(u))
	}
	return infos, nil
}

// UploadPhoto 保存头像: 裁剪为正方形缩略图,以 JPEG 保存
func (s *userService) UploadPhoto(ctx context.Context, username string, r io.Reader) (*UserInfo, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: unsupported image: %v", ErrInvalidInput, err)
	}

	size := s.media.PhotoSize
	if size <= 0 {
		size = 256
	}
	thumb := imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)

	if err := os.MkdirAll(s.media.PhotoDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create photo dir: %w", err)
	}
	filename := url.PathEscape(user.Username) + ".jpg"
	if err := imaging.Save(thumb, filepath.Join(s.media.PhotoDir, filename), imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("failed to save photo: %w", err)
	}

	photoURL := strings.TrimRight(s.media.BaseURL, "/") + "/" + filename
	if err := s.users.UpdatePhoto(ctx, user.Username, photoURL); err != nil {
		return nil, err
	}
	user.PhotoURL = photoURL
	return toUserInfo(user), nil
}
