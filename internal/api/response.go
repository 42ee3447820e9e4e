package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 成功响应;Code 恒为 0
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// ErrorResponse 错误响应
// Kind 仅在到场/完成流程失败时给出,客户端据此决定提示;Details 携带测得精度、距离和对应阈值
type ErrorResponse struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Detail  string                 `json:"detail,omitempty"`
	Kind    string                 `json:"kind,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Success 200 响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Message: "success", Data: data})
}

// SuccessMessage 200 响应,消息按请求语言翻译
func SuccessMessage(c *gin.Context, key string, data interface{}) {
	c.JSON(http.StatusOK, Response{Message: T(c, key), Data: data})
}

// Created 201 响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Message: T(c, "success.created"), Data: data})
}

// Fail 错误响应,key 为文案 key
func Fail(c *gin.Context, status int, key, detail string) {
	Error(c, status, T(c, key), detail)
}

// BadRequest 请求参数错误
func BadRequest(c *gin.Context, err error) {
	Fail(c, http.StatusBadRequest, "error.bad_request", err.Error())
}

// Error 以已翻译的消息写错误响应;code 不是 4xx/5xx 时按 500 返回
func Error(c *gin.Context, code int, message, detail string) {
	status := code
	if status < 400 || status >= 600 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, ErrorResponse{Code: code, Message: message, Detail: detail})
}
