package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/google/uuid"
	"github.com/mautops/dispatch-gin/internal/config"
	"github.com/mautops/dispatch-gin/internal/model"
	"github.com/mautops/dispatch-gin/internal/repository"
	"github.com/sirupsen/logrus"
)

const (
	maxRetries     = 3
	defaultBackoff = time.Second
)

// MessageSender 推送消息到 FCM,*messaging.Client 满足该接口
type MessageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Pusher 推送到在线的 WebSocket 连接
type Pusher interface {
	Publish(userID, msgType string, data interface{}) int
}

// EventHandlerOption 事件处理器选项
type EventHandlerOption func(*EventHandler)

// WithPusher 设置 WebSocket 推送
func WithPusher(p Pusher) EventHandlerOption {
	return func(h *EventHandler) {
		h.pusher = p
	}
}

// WithMessaging 设置 FCM 推送,topic 为空时不推送
func WithMessaging(sender MessageSender, topic string) EventHandlerOption {
	return func(h *EventHandler) {
		h.fcm = sender
		h.fcmTopic = topic
	}
}

// WithHTTPClient 设置 Webhook 使用的 HTTP 客户端
func WithHTTPClient(client *http.Client) EventHandlerOption {
	return func(h *EventHandler) {
		h.httpClient = client
	}
}

// WithBackoff 设置 Webhook 重试的初始退避时间
func WithBackoff(backoff time.Duration) EventHandlerOption {
	return func(h *EventHandler) {
		h.backoff = backoff
	}
}

type queuedEvent struct {
	id  string
	evt *model.TaskEvent
}

// EventHandler 任务事件处理器
// 事件先持久化,再由 worker 异步投递到 WebSocket、FCM 和 Webhook
type EventHandler struct {
	eventRepo  repository.EventRepository
	webhooks   []string
	pusher     Pusher
	fcm        MessageSender
	fcmTopic   string
	httpClient *http.Client
	backoff    time.Duration
	queue      chan queuedEvent
	stop       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// NewEventHandler 创建事件处理器并启动 worker
func NewEventHandler(eventRepo repository.EventRepository, cfg config.EventsConfig, opts ...EventHandlerOption) *EventHandler {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}

	h := &EventHandler{
		eventRepo:  eventRepo,
		webhooks:   cfg.Webhooks,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		backoff:    defaultBackoff,
		queue:      make(chan queuedEvent, queueSize),
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}

	// 启动 worker goroutines
	for i := 0; i < workers; i++ {
		h.wg.Add(1)
		go h.worker()
	}

	return h
}

// Publish 持久化事件并放入投递队列
func (h *EventHandler) Publish(ctx context.Context, evt *model.TaskEvent) error {
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}

	// 1. 持久化事件到数据库
	eventData, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	now := time.Now()
	eventModel := &model.EventModel{
		ID:        evt.ID,
		TaskID:    evt.TaskID,
		Worker:    evt.Worker,
		Type:      evt.Type,
		Data:      eventData,
		Status:    model.EventStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.eventRepo.Save(ctx, eventModel); err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}

	// 2. 异步投递
	h.enqueue(queuedEvent{id: evt.ID, evt: evt})
	return nil
}

// Recover 重新投递上次退出时未完成的事件
func (h *EventHandler) Recover(ctx context.Context) (int, error) {
	pending, err := h.eventRepo.FindPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to find pending events: %w", err)
	}

	n := 0
	for _, em := range pending {
		var evt model.TaskEvent
		if err := json.Unmarshal(em.Data, &evt); err != nil {
			logrus.WithError(err).WithField("event_id", em.ID).Warn("failed to decode pending event")
			_ = h.eventRepo.UpdateStatus(ctx, em.ID, model.EventStatusFailed, em.RetryCount)
			continue
		}
		if h.enqueue(queuedEvent{id: em.ID, evt: &evt}) {
			n++
		}
	}
	return n, nil
}

func (h *EventHandler) enqueue(item queuedEvent) bool {
	select {
	case h.queue <- item:
		return true
	default:
		// 队列满时记录日志,不阻塞,事件保持 pending 等待下次 Recover
		logrus.WithFields(logrus.Fields{
			"event_id": item.id,
			"type":     item.evt.Type,
			"task_id":  item.evt.TaskID,
		}).Warn("event queue full, deferring delivery")
		return false
	}
}

// worker 事件处理 worker
func (h *EventHandler) worker() {
	defer h.wg.Done()
	for {
		select {
		case item := <-h.queue:
			h.deliver(item)
		case <-h.stop:
			return
		}
	}
}

// deliver 投递一个事件
func (h *EventHandler) deliver(item queuedEvent) {
	evt := item.evt
	ctx := context.Background()
	log := logrus.WithFields(logrus.Fields{
		"event_id": item.id,
		"type":     evt.Type,
		"task_id":  evt.TaskID,
	})

	// 1. WebSocket 推送给执行人和管理员,不重试
	if h.pusher != nil {
		h.pusher.Publish(evt.Worker, "task_event", evt)
	}

	// 2. FCM 推送,失败只记录
	if h.fcm != nil && h.fcmTopic != "" {
		if _, err := h.fcm.Send(ctx, fcmMessage(h.fcmTopic, evt)); err != nil {
			log.WithError(err).Warn("failed to send fcm message")
		}
	}

	// 3. 没有 Webhook 配置,直接标记为成功
	if len(h.webhooks) == 0 {
		h.updateStatus(ctx, item.id, model.EventStatusSuccess, 0)
		return
	}

	// 4. 推送到所有 Webhook,失败时指数退避重试
	backoff := h.backoff
	retries := 0
	for i := 0; i < maxRetries; i++ {
		success := true
		for _, url := range h.webhooks {
			if err := h.sendWebhookRequest(ctx, url, evt); err != nil {
				success = false
				log.WithError(err).WithField("webhook", url).Warn("failed to send webhook request")
			}
		}

		if success {
			h.updateStatus(ctx, item.id, model.EventStatusSuccess, retries)
			return
		}

		// 如果还有重试机会,等待后重试
		retries++
		if i < maxRetries-1 {
			h.updateStatus(ctx, item.id, model.EventStatusPending, retries)
			select {
			case <-time.After(backoff):
			case <-h.stop:
				return
			}
			backoff *= 2
		}
	}

	// 所有重试都失败
	h.updateStatus(ctx, item.id, model.EventStatusFailed, retries)
	log.Error("event delivery failed after retries")
}

func (h *EventHandler) updateStatus(ctx context.Context, id, status string, retries int) {
	if err := h.eventRepo.UpdateStatus(ctx, id, status, retries); err != nil {
		logrus.WithError(err).WithField("event_id", id).Error("failed to update event status")
	}
}

// sendWebhookRequest 发送 Webhook 请求
func (h *EventHandler) sendWebhookRequest(ctx context.Context, url string, evt *model.TaskEvent) error {
	eventData, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(eventData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", evt.Type)
	req.Header.Set("X-Event-ID", evt.ID)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status code: %d", resp.StatusCode)
	}
	return nil
}

// fcmMessage 构造 FCM 主题消息
func fcmMessage(topic string, evt *model.TaskEvent) *messaging.Message {
	msg := &messaging.Message{
		Topic: topic,
		Data: map[string]string{
			"type":   evt.Type,
			"taskId": evt.TaskID,
			"worker": evt.Worker,
		},
	}
	if evt.Type == model.EventTaskCreated && evt.Task != nil {
		msg.Notification = &messaging.Notification{
			Title: "New task",
			Body:  evt.Task.Title + " · " + evt.Task.Time,
		}
	}
	return msg
}

// Stop 停止事件处理器并等待 worker 退出
func (h *EventHandler) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
	h.wg.Wait()
}
