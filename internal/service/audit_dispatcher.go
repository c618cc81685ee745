package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/geoattend-api/internal/models"
	"github.com/noah-isme/geoattend-api/pkg/jobs"
)

// AuditDispatcher writes audit log entries on a background worker pool so
// request latency does not include the audit insert. When the buffer is full
// the entry is written inline.
type AuditDispatcher struct {
	writer auditWriter
	queue  *jobs.Queue[*models.AuditLog]
	logger *zap.Logger
}

// NewAuditDispatcher wraps writer. Call Start before use and Stop on shutdown.
func NewAuditDispatcher(writer auditWriter, cfg jobs.Config) *AuditDispatcher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	d := &AuditDispatcher{writer: writer, logger: cfg.Logger}
	d.queue = jobs.New("audit", func(ctx context.Context, entry *models.AuditLog) error {
		return writer.CreateAuditLog(ctx, entry)
	}, cfg)
	return d
}

// Start launches the workers.
func (d *AuditDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains pending entries.
func (d *AuditDispatcher) Stop(ctx context.Context) error {
	return d.queue.Stop(ctx)
}

// CreateAuditLog queues entry for writing.
func (d *AuditDispatcher) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	if d.queue.TryEnqueue(entry) {
		return nil
	}
	d.logger.Debug("audit queue unavailable, writing inline", zap.String("action", entry.Action))
	return d.writer.CreateAuditLog(ctx, entry)
}
