package location_test

import (
	"context"
	"testing"

	"github.com/mautops/dispatch-gin/internal/location"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

// TestReportedProvider_Permission 测试权限上报
func TestReportedProvider_Permission(t *testing.T) {
	ctx := context.Background()

	granted, err := location.NewReportedProvider(location.Report{}).RequestPermission(ctx)
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = location.NewReportedProvider(location.Report{PermissionGranted: boolPtr(false)}).RequestPermission(ctx)
	require.NoError(t, err)
	assert.False(t, granted)
}

// TestReportedProvider_Fix 测试定位上报
func TestReportedProvider_Fix(t *testing.T) {
	ctx := context.Background()
	fix := &location.Fix{Latitude: 55.75, Longitude: 37.62, Accuracy: 20}

	got, err := location.NewReportedProvider(location.Report{Fix: fix}).CurrentPosition(ctx, location.AccuracyBalanced)
	require.NoError(t, err)
	assert.Equal(t, *fix, got)
}

// TestReportedProvider_Errors 测试上报错误与非法坐标
func TestReportedProvider_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := location.NewReportedProvider(location.Report{Error: "timeout"}).CurrentPosition(ctx, location.AccuracyHigh)
	assert.ErrorIs(t, err, location.ErrUnavailable)

	_, err = location.NewReportedProvider(location.Report{}).CurrentPosition(ctx, location.AccuracyHigh)
	assert.ErrorIs(t, err, location.ErrUnavailable)

	bad := &location.Fix{Latitude: 123, Longitude: 37.62, Accuracy: 20}
	_, err = location.NewReportedProvider(location.Report{Fix: bad}).CurrentPosition(ctx, location.AccuracyHigh)
	assert.ErrorIs(t, err, location.ErrUnavailable)

	negative := &location.Fix{Latitude: 55, Longitude: 37, Accuracy: -1}
	_, err = location.NewReportedProvider(location.Report{Fix: negative}).CurrentPosition(ctx, location.AccuracyHigh)
	assert.ErrorIs(t, err, location.ErrUnavailable)
}

// TestReport_Empty 测试空上报
func TestReport_Empty(t *testing.T) {
	assert.True(t, location.Report{}.Empty())
	assert.False(t, location.Report{Error: "x"}.Empty())
}
