package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"proof-reward-system/models"
	"proof-reward-system/utils"

	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// SubmissionLister is the part of the submission store the export reads
type SubmissionLister interface {
	ListAll(ctx context.Context) ([]models.Submission, error)
}

// Snapshot is the JSON document written to object storage
type Snapshot struct {
	ExportedAt  time.Time           `json:"exportedAt"`
	Count       int                 `json:"count"`
	Submissions []models.Submission `json:"submissions"`
}

// ExportWorker archives every submission as one JSON object per run
type ExportWorker struct {
	store  SubmissionLister
	bucket utils.ObjectStore
	prefix string
	clock  clockwork.Clock
	log    *zap.Logger
}

func NewExportWorker(store SubmissionLister, bucket utils.ObjectStore, prefix string, clock clockwork.Clock, log *zap.Logger) *ExportWorker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ExportWorker{
		store:  store,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		clock:  clock,
		log:    log.Named("export_worker"),
	}
}

// Export writes a snapshot and returns the object key
func (w *ExportWorker) Export(ctx context.Context) (string, error) {
	subs, err := w.store.ListAll(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list submissions: %w", err)
	}

	now := w.clock.Now().UTC()
	body, err := json.Marshal(Snapshot{ExportedAt: now, Count: len(subs), Submissions: subs})
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	key := w.objectKey(now)
	if err := w.bucket.PutObject(ctx, key, body, "application/json"); err != nil {
		return "", err
	}

	w.log.Info("snapshot exported", zap.String("key", key), zap.Int("records", len(subs)))
	return key, nil
}

func (w *ExportWorker) objectKey(at time.Time) string {
	name := slug.Make("submissions " + at.Format("2006-01-02 15:04:05")) + ".json"
	if w.prefix == "" {
		return name
	}
	return path.Join(w.prefix, name)
}
