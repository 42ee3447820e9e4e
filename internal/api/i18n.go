package api

import (
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	defaultLanguage = "en"
	languageKey     = "language"
)

// catalog 界面文案,工人端主要使用俄语
var catalog = map[string]map[string]string{
	"en": {
		"error.not_found":            "Resource not found",
		"error.unauthorized":         "Unauthorized",
		"error.forbidden":            "Forbidden",
		"error.bad_request":          "Bad request",
		"error.internal_error":       "Something went wrong. Please try again.",
		"error.permission_denied":    "Location access denied",
		"error.location_unavailable": "Could not determine your location. Check GPS access and try again.",
		"error.accuracy_too_low":     "Location accuracy is too low. Move to an open area and wait for GPS to settle.",
		"error.not_on_site":          "You must confirm presence on site before completing the task",
		"error.out_of_range":         "Too far from the task location",
		"error.task_completed":       "Task is already completed",
		"error.not_assignee":         "Task is assigned to another worker",
		"error.address_not_found":    "Address not found. Check that it is correct.",
		"error.invalid_credentials":  "Invalid username or password",
		"error.user_exists":          "User already exists",
		"success.created":            "Created successfully",
		"success.confirmed":          "You are on site! The task can now be completed",
		"success.completed":          "Work completed! Location saved",
	},
	"ru": {
		"error.not_found":            "Ресурс не найден",
		"error.unauthorized":         "Требуется авторизация",
		"error.forbidden":            "Доступ запрещен",
		"error.bad_request":          "Некорректный запрос",
		"error.internal_error":       "Произошла непредвиденная ошибка. Пожалуйста, попробуйте снова.",
		"error.permission_denied":    "Доступ к геолокации отклонен!",
		"error.location_unavailable": "Не удалось определить местоположение. Пожалуйста, проверьте доступ к GPS и попробуйте снова.",
		"error.accuracy_too_low":     "Низкая точность. Подойдите в более открытое место и подождите, пока GPS стабилизируется.",
		"error.not_on_site":          "Вы должны находиться на месте для завершения задачи",
		"error.out_of_range":         "Слишком далеко",
		"error.task_completed":       "Задача уже завершена",
		"error.not_assignee":         "Задача назначена другому работнику",
		"error.address_not_found":    "Адрес не найден. Проверьте правильность.",
		"error.invalid_credentials":  "Неверный логин или пароль",
		"error.user_exists":          "Пользователь уже существует",
		"success.created":            "Создано",
		"success.confirmed":          "Вы на месте! Теперь можно завершить задачу",
		"success.completed":          "Работа завершена! Местоположение сохранено",
	},
}

// I18nMiddleware 确定响应语言:?lang= 优先,其次 Accept-Language,都不支持时为英语
func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang, ok := supportedLanguage(c.Query("lang"))
		if !ok {
			lang = negotiateLanguage(c.GetHeader("Accept-Language"))
		}
		c.Set(languageKey, lang)
		c.Next()
	}
}

// GetLanguage 返回当前请求的语言
func GetLanguage(c *gin.Context) string {
	if lang := c.GetString(languageKey); lang != "" {
		return lang
	}
	return defaultLanguage
}

// T 按请求语言翻译,缺失时退回英语,再缺失时返回 key
func T(c *gin.Context, key string) string {
	if msg, ok := catalog[GetLanguage(c)][key]; ok {
		return msg
	}
	if msg, ok := catalog[defaultLanguage][key]; ok {
		return msg
	}
	return key
}

// supportedLanguage 将 ru-RU 之类的标签归为基础语言
func supportedLanguage(tag string) (string, bool) {
	base, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(tag)), "-")
	base, _, _ = strings.Cut(base, "_")
	_, ok := catalog[base]
	return base, ok
}

// negotiateLanguage 按 q 值从高到低选择第一个支持的语言
func negotiateLanguage(header string) string {
	type candidate struct {
		lang string
		q    float64
	}
	var candidates []candidate
	for _, part := range strings.Split(header, ",") {
		tag, params, _ := strings.Cut(part, ";")
		lang, ok := supportedLanguage(tag)
		if !ok {
			continue
		}
		q := 1.0
		if v, found := strings.CutPrefix(strings.TrimSpace(params), "q="); found {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				q = parsed
			}
		}
		if q > 0 {
			candidates = append(candidates, candidate{lang, q})
		}
	}
	if len(candidates) == 0 {
		return defaultLanguage
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].q > candidates[j].q })
	return candidates[0].lang
}
