package workers

import (
	"context"

	"proof-reward-system/models"
	"proof-reward-system/services"

	"go.uber.org/zap"
)

// StatusCounter is the part of the submission store the gauge refresh reads
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[models.SubmissionStatus]int64, error)
}

// StatusWorker keeps the records-by-status gauge in line with the table
type StatusWorker struct {
	store   StatusCounter
	metrics *services.Metrics
	log     *zap.Logger
}

func NewStatusWorker(store StatusCounter, metrics *services.Metrics, log *zap.Logger) *StatusWorker {
	if log == nil {
		log = zap.NewNop()
	}
	return &StatusWorker{store: store, metrics: metrics, log: log.Named("status_worker")}
}

func (w *StatusWorker) Refresh(ctx context.Context) error {
	counts, err := w.store.CountByStatus(ctx)
	if err != nil {
		return err
	}
	for _, status := range models.AllSubmissionStatuses {
		w.metrics.RecordsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
	w.log.Debug("status gauge refreshed", zap.Any("counts", counts))
	return nil
}
