package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/dispatch-gin/internal/auth"
	"github.com/mautops/dispatch-gin/internal/service"
)

// maxPhotoSize 头像上传大小上限
const maxPhotoSize = 10 << 20

// PresenceChecker 查询工人设备是否在线
type PresenceChecker interface {
	IsOnline(userID string) bool
}

// AuthController 用户与认证控制器
type AuthController struct {
	userService service.UserService
	presence    PresenceChecker
}

// NewAuthController 创建认证控制器,presence 为 nil 时工人一律显示离线
func NewAuthController(userService service.UserService, presence PresenceChecker) *AuthController {
	return &AuthController{userService: userService, presence: presence}
}

// Register 注册
// POST /api/v1/auth/register
func (ac *AuthController) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err)
		return
	}

	user, err := ac.userService.Register(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	Created(c, user)
}

// Login 登录
// POST /api/v1/auth/login
func (ac *AuthController) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err)
		return
	}

	resp, err := ac.userService.Login(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	Success(c, resp)
}

// Me 当前用户信息
// GET /api/v1/auth/me
func (ac *AuthController) Me(c *gin.Context) {
	user, err := ac.userService.Get(c.Request.Context(), auth.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	Success(c, user)
}

// UploadPhoto 上传头像,multipart 字段名 photo
// POST /api/v1/users/me/photo
func (ac *AuthController) UploadPhoto(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxPhotoSize)

	header, err := c.FormFile("photo")
	if err != nil {
		BadRequest(c, err)
		return
	}
	file, err := header.Open()
	if err != nil {
		BadRequest(c, err)
		return
	}
	defer file.Close()

	user, err := ac.userService.UploadPhoto(c.Request.Context(), auth.UserID(c), file)
	if err != nil {
		_ = c.Error(err)
		return
	}

	Success(c, user)
}

// ListWorkers 列出所有工人及其设备在线状态
// GET /api/v1/workers
func (ac *AuthController) ListWorkers(c *gin.Context) {
	workers, err := ac.userService.ListWorkers(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	if ac.presence != nil {
		for _, w := range workers {
			w.Online = ac.presence.IsOnline(w.Username)
		}
	}

	Success(c, workers)
}
