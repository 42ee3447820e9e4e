// Package jobs 运行后台定时任务: 指标刷新和审计日志清理
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/dispatch-gin/internal/config"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// MetricsCollector 刷新指标
type MetricsCollector interface {
	Collect(ctx context.Context) error
}

// AuditPurger 清理过期审计日志
type AuditPurger interface {
	Purge(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Scheduler 定时任务调度器
type Scheduler struct {
	cron      *cron.Cron
	cfg       config.JobsConfig
	collector MetricsCollector
	audit     AuditPurger
	entries   map[string]cron.EntryID
}

// NewScheduler 创建调度器,collector 或 audit 为 nil 时不注册对应任务
func NewScheduler(cfg config.JobsConfig, collector MetricsCollector, audit AuditPurger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger))),
		cfg:       cfg,
		collector: collector,
		audit:     audit,
		entries:   make(map[string]cron.EntryID),
	}
}

// Start 注册任务并启动调度,立即刷新一次指标
func (s *Scheduler) Start() error {
	if s.collector != nil && s.cfg.MetricsRefresh != "" {
		if err := s.add("metrics_refresh", s.cfg.MetricsRefresh, s.RefreshMetrics); err != nil {
			return err
		}
		s.RefreshMetrics()
	}
	if s.audit != nil && s.cfg.AuditRetention != "" && s.cfg.AuditMaxAge > 0 {
		if err := s.add("audit_retention", s.cfg.AuditRetention, s.PurgeAuditLogs); err != nil {
			return err
		}
	}

	s.cron.Start()
	logrus.WithField("jobs", len(s.entries)).Info("job scheduler started")
	return nil
}

func (s *Scheduler) add(name, spec string, job func()) error {
	id, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("failed to schedule %s job: %w", name, err)
	}
	s.entries[name] = id
	return nil
}

// Stop 停止调度并等待运行中的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Next 返回任务的下次运行时间
func (s *Scheduler) Next(name string) (time.Time, bool) {
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// RefreshMetrics 刷新指标
func (s *Scheduler) RefreshMetrics() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.collector.Collect(ctx); err != nil {
		logrus.WithError(err).Warn("failed to refresh metrics")
	}
}

// PurgeAuditLogs 清理超过保留期的审计日志
func (s *Scheduler) PurgeAuditLogs() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	n, err := s.audit.Purge(ctx, s.cfg.AuditMaxAge)
	if err != nil {
		logrus.WithError(err).Error("failed to purge audit logs")
		return
	}
	logrus.WithField("deleted", n).Info("audit logs purged")
}
