// Package audit writes per-operation audit records through the structured
// logger. The engine guarantees one executing and one executed record per
// dispatched bundle entry, all sharing the submission correlation id.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/curanet/fhird/internal/service/fhir/ports"
)

type Sink struct {
	logger *zap.Logger
}

func NewSink(logger *zap.Logger) *Sink {
	return &Sink{logger: logger.Named("audit")}
}

func (s *Sink) Executing(ctx context.Context, ev ports.AuditEvent) {
	s.logger.Info("executing",
		zap.String("correlation", ev.Correlation),
		zap.String("resource_type", ev.ResourceType),
		zap.String("action", ev.Action),
	)
}

func (s *Sink) Executed(ctx context.Context, ev ports.AuditEvent) {
	s.logger.Info("executed",
		zap.String("correlation", ev.Correlation),
		zap.String("resource_type", ev.ResourceType),
		zap.String("action", ev.Action),
		zap.Int("status", ev.Status),
	)
}
