package location_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mautops/dispatch-gin/internal/location"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	userID    string
	msgType   string
	requestID string
	data      interface{}
}

// fakeSender 记录推送,并由 reply 模拟设备回复
type fakeSender struct {
	mu      sync.Mutex
	online  map[string]bool
	sent    []sentMessage
	reply   func(msg sentMessage)
	replies sync.WaitGroup
}

func (s *fakeSender) Notify(userID, msgType, requestID string, data interface{}) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.online[userID] {
		return 0
	}
	msg := sentMessage{userID: userID, msgType: msgType, requestID: requestID, data: data}
	s.sent = append(s.sent, msg)
	if s.reply != nil {
		s.replies.Add(1)
		go func() {
			defer s.replies.Done()
			s.reply(msg)
		}()
	}
	return 1
}

func raw(t *testing.T, v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// TestDeviceBridge_CurrentPosition 测试设备定位往返
func TestDeviceBridge_CurrentPosition(t *testing.T) {
	sender := &fakeSender{online: map[string]bool{"ivan": true}}
	bridge := location.NewDeviceBridge(sender, time.Second)
	sender.reply = func(msg sentMessage) {
		fix := location.Fix{Latitude: 55.75, Longitude: 37.62, Accuracy: 8}
		bridge.HandleResponse("ivan", location.MessageLocationResponse, msg.requestID, raw(t, location.Report{Fix: &fix}))
	}

	fix, err := bridge.Provider("ivan").CurrentPosition(context.Background(), location.AccuracyHigh)
	require.NoError(t, err)
	assert.Equal(t, 8.0, fix.Accuracy)

	sender.replies.Wait()
	require.Len(t, sender.sent, 1)
	assert.Equal(t, location.MessageLocationRequest, sender.sent[0].msgType)
	assert.Equal(t, location.LocationRequest{Mode: location.AccuracyHigh}, sender.sent[0].data)
	assert.Equal(t, 0, bridge.Pending())
}

// TestDeviceBridge_NoDevice 测试没有在线设备
func TestDeviceBridge_NoDevice(t *testing.T) {
	bridge := location.NewDeviceBridge(&fakeSender{}, time.Second)

	_, err := bridge.Provider("ivan").CurrentPosition(context.Background(), location.AccuracyBalanced)
	assert.ErrorIs(t, err, location.ErrNoDevice)
	assert.ErrorIs(t, err, location.ErrUnavailable)

	_, err = bridge.Provider("ivan").RequestPermission(context.Background())
	assert.ErrorIs(t, err, location.ErrNoDevice)
}

// TestDeviceBridge_Permission 测试权限往返
func TestDeviceBridge_Permission(t *testing.T) {
	tests := []struct {
		name    string
		report  location.Report
		granted bool
		wantErr bool
	}{
		{"granted", location.Report{PermissionGranted: boolPtr(true)}, true, false},
		{"denied", location.Report{PermissionGranted: boolPtr(false)}, false, false},
		{"error", location.Report{Error: "services disabled"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{online: map[string]bool{"ivan": true}}
			bridge := location.NewDeviceBridge(sender, time.Second)
			sender.reply = func(msg sentMessage) {
				bridge.HandleResponse("ivan", location.MessagePermissionResponse, msg.requestID, raw(t, tt.report))
			}

			granted, err := bridge.Provider("ivan").RequestPermission(context.Background())
			if tt.wantErr {
				assert.ErrorIs(t, err, location.ErrUnavailable)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.granted, granted)
			sender.replies.Wait()
		})
	}
}

// TestDeviceBridge_PermissionTimeout 测试设备不回复权限请求
func TestDeviceBridge_PermissionTimeout(t *testing.T) {
	bridge := location.NewDeviceBridge(&fakeSender{online: map[string]bool{"ivan": true}}, 30*time.Millisecond)

	_, err := bridge.Provider("ivan").RequestPermission(context.Background())
	assert.ErrorIs(t, err, location.ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, bridge.Pending())
}

// TestDeviceBridge_IgnoresOtherUsers 测试其他用户的回复不被接受
func TestDeviceBridge_IgnoresOtherUsers(t *testing.T) {
	sender := &fakeSender{online: map[string]bool{"ivan": true}}
	bridge := location.NewDeviceBridge(sender, time.Second)
	matched := make(chan bool, 2)
	sender.reply = func(msg sentMessage) {
		fix := location.Fix{Latitude: 1, Longitude: 2, Accuracy: 3}
		data := raw(t, location.Report{Fix: &fix})
		matched <- bridge.HandleResponse("olga", location.MessageLocationResponse, msg.requestID, data)
		matched <- bridge.HandleResponse("ivan", location.MessagePermissionResponse, msg.requestID, data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := bridge.Provider("ivan").CurrentPosition(ctx, location.AccuracyHigh)
	assert.ErrorIs(t, err, location.ErrUnavailable)

	sender.replies.Wait()
	assert.False(t, <-matched)
	assert.False(t, <-matched)
}

// TestDeviceBridge_DeviceError 测试设备上报定位失败
func TestDeviceBridge_DeviceError(t *testing.T) {
	sender := &fakeSender{online: map[string]bool{"ivan": true}}
	bridge := location.NewDeviceBridge(sender, time.Second)
	sender.reply = func(msg sentMessage) {
		bridge.HandleResponse("ivan", location.MessageLocationResponse, msg.requestID, raw(t, location.Report{Error: "gps off"}))
	}

	_, err := bridge.Provider("ivan").CurrentPosition(context.Background(), location.AccuracyBalanced)
	assert.ErrorIs(t, err, location.ErrUnavailable)
	assert.Contains(t, err.Error(), "gps off")
	sender.replies.Wait()
}
