// services/submission_repository.go
package services

import (
	"context"
	"errors"
	"time"

	"proof-reward-system/models"
	"proof-reward-system/utils"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubmissionStore is the durable home of submission records. Every mutation is a single
// statement guarded by the lifecycle, so concurrent callers cannot both win a transition.
type SubmissionStore interface {
	InsertIfAbsent(ctx context.Context, sub *models.Submission) error
	Get(ctx context.Context, wallet string) (*models.Submission, error)
	ListAll(ctx context.Context) ([]models.Submission, error)
	ListApproved(ctx context.Context) ([]models.Submission, error)
	TransitionApproval(ctx context.Context, wallet string, approved bool, notes *string) (*models.Submission, error)
	TryMarkClaimed(ctx context.Context, wallet, txHash string) (*models.Submission, error)
	CountByStatus(ctx context.Context) (map[models.SubmissionStatus]int64, error)
}

type SubmissionRepository struct {
	DB    *gorm.DB
	Clock clockwork.Clock
}

func NewSubmissionRepository(db *gorm.DB, clock clockwork.Clock) *SubmissionRepository {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SubmissionRepository{DB: db, Clock: clock}
}

var _ SubmissionStore = (*SubmissionRepository)(nil)

func (r *SubmissionRepository) now() time.Time {
	return r.Clock.Now().UTC()
}

// InsertIfAbsent stores a new pending record. The wallet is normalized here so no caller can
// create a second record for a case or whitespace variant.
func (r *SubmissionRepository) InsertIfAbsent(ctx context.Context, sub *models.Submission) error {
	wallet, err := utils.NormalizeWallet(sub.WalletAddress)
	if err != nil {
		return ErrInvalidAddress
	}

	now := r.now()
	sub.ID = 0
	sub.WalletAddress = wallet
	sub.Status = models.SubmissionStatusPending
	sub.ModeratorNotes = nil
	sub.ApprovedAt = nil
	sub.ClaimedAt = nil
	sub.TransactionHash = nil
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = now
	}
	sub.UpdatedAt = now

	res := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(sub)
	if res.Error != nil {
		return internalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateSubmission
	}
	return nil
}

func (r *SubmissionRepository) Get(ctx context.Context, wallet string) (*models.Submission, error) {
	key, err := utils.NormalizeWallet(wallet)
	if err != nil {
		return nil, ErrInvalidAddress
	}

	var sub models.Submission
	if err := r.DB.WithContext(ctx).Where("wallet_address = ?", key).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, internalError(err)
	}
	return &sub, nil
}

// ListAll returns every record, newest first
func (r *SubmissionRepository) ListAll(ctx context.Context) ([]models.Submission, error) {
	var subs []models.Submission
	if err := r.DB.WithContext(ctx).Order("submitted_at DESC, id DESC").Find(&subs).Error; err != nil {
		return nil, internalError(err)
	}
	return subs, nil
}

// ListApproved returns approved, unclaimed records oldest first
func (r *SubmissionRepository) ListApproved(ctx context.Context) ([]models.Submission, error) {
	var subs []models.Submission
	err := r.DB.WithContext(ctx).
		Where("status = ?", string(models.SubmissionStatusApproved)).
		Order("submitted_at ASC, id ASC").
		Find(&subs).Error
	if err != nil {
		return nil, internalError(err)
	}
	return subs, nil
}

// TransitionApproval records a moderator decision. It only succeeds from pending.
func (r *SubmissionRepository) TransitionApproval(ctx context.Context, wallet string, approved bool, notes *string) (*models.Submission, error) {
	intent := IntentReject
	next := models.SubmissionStatusRejected
	if approved {
		intent = IntentApprove
		next = models.SubmissionStatusApproved
	}

	now := r.now()
	updates := map[string]interface{}{
		"status":          string(next),
		"moderator_notes": notes,
		"updated_at":      now,
	}
	if approved {
		updates["approved_at"] = now
	}

	return r.conditionalUpdate(ctx, wallet, intent, updates)
}

// TryMarkClaimed is the only way a record becomes claimed. Status, claim time and transaction
// hash are written in one statement, and only while the record is still approved.
func (r *SubmissionRepository) TryMarkClaimed(ctx context.Context, wallet, txHash string) (*models.Submission, error) {
	if txHash == "" {
		return nil, internalError(errors.New("refusing to mark claimed without a transaction hash"))
	}

	now := r.now()
	return r.conditionalUpdate(ctx, wallet, IntentClaim, map[string]interface{}{
		"status":           string(models.SubmissionStatusClaimed),
		"claimed_at":       now,
		"transaction_hash": txHash,
		"updated_at":       now,
	})
}

func (r *SubmissionRepository) conditionalUpdate(ctx context.Context, wallet string, intent Intent, updates map[string]interface{}) (*models.Submission, error) {
	key, err := utils.NormalizeWallet(wallet)
	if err != nil {
		return nil, ErrInvalidAddress
	}

	res := r.DB.WithContext(ctx).
		Model(&models.Submission{}).
		Where("wallet_address = ? AND status IN ?", key, statusStrings(AllowedFrom(intent))).
		Updates(updates)
	if res.Error != nil {
		return nil, internalError(res.Error)
	}

	sub, err := r.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 1 {
		return sub, nil
	}

	// zero rows: explain why from the current state
	if _, err := NextStatus(sub.Status, intent); err != nil {
		return sub, err
	}
	return sub, internalError(errors.New("conditional update matched no rows for a legal transition"))
}

type statusCount struct {
	Status string
	Count  int64
}

// CountByStatus returns the number of records in each status; missing statuses report zero
func (r *SubmissionRepository) CountByStatus(ctx context.Context) (map[models.SubmissionStatus]int64, error) {
	var rows []statusCount
	err := r.DB.WithContext(ctx).
		Model(&models.Submission{}).
		Select("status, count(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, internalError(err)
	}

	counts := make(map[models.SubmissionStatus]int64, len(models.AllSubmissionStatuses))
	for _, s := range models.AllSubmissionStatuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[models.SubmissionStatus(row.Status)] = row.Count
	}
	return counts, nil
}

func statusStrings(statuses []models.SubmissionStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
