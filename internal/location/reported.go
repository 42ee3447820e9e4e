package location

import (
	"context"
	"fmt"
)

// Report 客户端随请求上报的定位结果
type Report struct {
	PermissionGranted *bool  `json:"permissionGranted"`
	Fix               *Fix   `json:"fix"`
	Error             string `json:"error"`
}

// Empty 是否没有任何上报内容
func (r Report) Empty() bool {
	return r.PermissionGranted == nil && r.Fix == nil && r.Error == ""
}

// ReportedProvider 基于客户端上报结果的定位来源
type ReportedProvider struct {
	report Report
}

// NewReportedProvider 创建上报定位来源
func NewReportedProvider(report Report) *ReportedProvider {
	return &ReportedProvider{report: report}
}

// RequestPermission 未显式上报时视为已授权
func (p *ReportedProvider) RequestPermission(ctx context.Context) (bool, error) {
	if p.report.PermissionGranted == nil {
		return true, nil
	}
	return *p.report.PermissionGranted, nil
}

// CurrentPosition 返回上报的定位
func (p *ReportedProvider) CurrentPosition(ctx context.Context, mode AccuracyMode) (Fix, error) {
	if p.report.Error != "" {
		return Fix{}, fmt.Errorf("%w: %s", ErrUnavailable, p.report.Error)
	}
	if p.report.Fix == nil {
		return Fix{}, fmt.Errorf("%w: no fix reported", ErrUnavailable)
	}
	if err := p.report.Fix.Validate(); err != nil {
		return Fix{}, fmt.Errorf("%w: invalid fix: %v", ErrUnavailable, err)
	}
	return *p.report.Fix, nil
}
