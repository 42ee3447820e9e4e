package location

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// 设备往返消息类型
const (
	MessageLocationRequest    = "location_request"
	MessagePermissionRequest  = "permission_request"
	MessageLocationResponse   = "location_response"
	MessagePermissionResponse = "permission_response"
)

// Sender 向用户在线设备推送消息,返回送达的连接数
type Sender interface {
	Notify(userID, msgType, requestID string, data interface{}) int
}

// LocationRequest 推送给设备的定位请求
type LocationRequest struct {
	Mode AccuracyMode `json:"mode"`
}

type pendingRequest struct {
	worker   string
	response string
	reply    chan json.RawMessage
}

// DeviceBridge 通过 WebSocket 向工人的设备索取定位
//
// 每次请求带一个 requestId,设备以同一 requestId 回复。只有请求对象本人的连接的回复会被接受。
type DeviceBridge struct {
	sender            Sender
	permissionTimeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingRequest
}

// NewDeviceBridge 创建设备桥接,permissionTimeout 限制权限请求的等待时间
func NewDeviceBridge(sender Sender, permissionTimeout time.Duration) *DeviceBridge {
	return &DeviceBridge{
		sender:            sender,
		permissionTimeout: permissionTimeout,
		pending:           make(map[string]*pendingRequest),
	}
}

// Provider 返回某个工人设备的定位来源
func (b *DeviceBridge) Provider(worker string) Provider {
	return &deviceProvider{bridge: b, worker: worker}
}

// Pending 等待回复的请求数
func (b *DeviceBridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// HandleResponse 处理设备回复,返回是否匹配到等待中的请求
func (b *DeviceBridge) HandleResponse(userID, msgType, requestID string, data json.RawMessage) bool {
	b.mu.Lock()
	req, ok := b.pending[requestID]
	b.mu.Unlock()

	if !ok || req.worker != userID || req.response != msgType {
		logrus.WithFields(logrus.Fields{
			"user_id":    userID,
			"type":       msgType,
			"request_id": requestID,
		}).Debug("ignoring unmatched device response")
		return false
	}

	select {
	case req.reply <- data:
		return true
	default:
		return false
	}
}

func (b *DeviceBridge) roundTrip(ctx context.Context, worker, request, response string, payload interface{}) (Report, error) {
	id := uuid.New().String()
	req := &pendingRequest{worker: worker, response: response, reply: make(chan json.RawMessage, 1)}

	b.mu.Lock()
	b.pending[id] = req
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	if b.sender.Notify(worker, request, id, payload) == 0 {
		return Report{}, ErrNoDevice
	}

	select {
	case raw := <-req.reply:
		var report Report
		if err := json.Unmarshal(raw, &report); err != nil {
			return Report{}, fmt.Errorf("%w: malformed device response: %v", ErrUnavailable, err)
		}
		return report, nil
	case <-ctx.Done():
		return Report{}, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	}
}

type deviceProvider struct {
	bridge *DeviceBridge
	worker string
}

// RequestPermission 请求设备授予定位权限
func (p *deviceProvider) RequestPermission(ctx context.Context) (bool, error) {
	if p.bridge.permissionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.bridge.permissionTimeout)
		defer cancel()
	}

	report, err := p.bridge.roundTrip(ctx, p.worker, MessagePermissionRequest, MessagePermissionResponse, nil)
	if err != nil {
		return false, err
	}
	if report.Error != "" {
		return false, fmt.Errorf("%w: %s", ErrUnavailable, report.Error)
	}
	return NewReportedProvider(report).RequestPermission(ctx)
}

// CurrentPosition 请求设备上报当前位置
func (p *deviceProvider) CurrentPosition(ctx context.Context, mode AccuracyMode) (Fix, error) {
	report, err := p.bridge.roundTrip(ctx, p.worker, MessageLocationRequest, MessageLocationResponse, LocationRequest{Mode: mode})
	if err != nil {
		return Fix{}, err
	}
	return NewReportedProvider(report).CurrentPosition(ctx, mode)
}
