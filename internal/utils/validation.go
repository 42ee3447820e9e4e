package utils

import (
	"strings"
	"unicode"
)

// forbiddenKeyChars 文档存储路径段中不允许的字符
const forbiddenKeyChars = "/.#$[]"

// maxKeyLength 路径段最大长度
const maxKeyLength = 64

// SanitizeString 移除控制字符（保留换行符和制表符）
func SanitizeString(input string) string {
	var result strings.Builder
	for _, r := range input {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		result.WriteRune(r)
	}

	return result.String()
}

// ValidateKey 验证用作存储路径段的工人名或任务 ID
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyID
	}
	if len(key) > maxKeyLength {
		return ErrIDTooLong
	}
	if strings.ContainsAny(key, forbiddenKeyChars) {
		return ErrInvalidIDFormat
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return ErrInvalidIDFormat
		}
	}
	return nil
}

// 错误定义
var (
	ErrEmptyID         = &ValidationError{Code: "EMPTY_ID", Message: "id cannot be empty"}
	ErrInvalidIDFormat = &ValidationError{Code: "INVALID_ID_FORMAT", Message: "id contains invalid characters"}
	ErrIDTooLong       = &ValidationError{Code: "ID_TOO_LONG", Message: "id exceeds maximum length"}
)

// ValidationError 验证错误
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
