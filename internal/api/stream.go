package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/dispatch-gin/internal/auth"
	"github.com/mautops/dispatch-gin/internal/model"
	"github.com/mautops/dispatch-gin/internal/repository"
	"github.com/sirupsen/logrus"
)

// streamHeartbeat SSE 心跳间隔
var streamHeartbeat = 30 * time.Second

// StreamHandler 任务列表 SSE 推送
// GET /api/v1/stream/tasks?worker=,工人只能订阅自己的任务,管理员不带 worker 时订阅全部
func StreamHandler(repo repository.TaskRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		worker := c.Query("worker")
		if !auth.IsAdmin(c) {
			if worker != "" && worker != auth.UserID(c) {
				forbidden(c)
				return
			}
			worker = auth.UserID(c)
		}

		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			Fail(c, http.StatusInternalServerError, "error.internal_error", "streaming not supported")
			return
		}

		// 只保留最新快照,慢客户端跳过中间状态
		snapshots := make(chan []*model.Task, 1)
		ctx := c.Request.Context()
		unsubscribe, err := repo.Subscribe(ctx, worker, func(tasks []*model.Task) {
			for {
				select {
				case snapshots <- tasks:
					return
				default:
				}
				select {
				case <-snapshots:
				default:
				}
			}
		})
		if err != nil {
			_ = c.Error(err)
			return
		}
		defer unsubscribe()

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no") // 禁用 Nginx 缓冲
		c.Status(http.StatusOK)
		flusher.Flush()

		ticker := time.NewTicker(streamHeartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := io.WriteString(c.Writer, ": heartbeat\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case tasks := <-snapshots:
				data, err := json.Marshal(tasks)
				if err != nil {
					logrus.WithError(err).Warn("failed to encode task snapshot")
					continue
				}
				if err := sendSSEMessage(c.Writer, "tasks", data); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

// sendSSEMessage 发送 SSE 消息
func sendSSEMessage(w io.Writer, event string, data []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
