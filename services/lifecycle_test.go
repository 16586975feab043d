package services

import (
	"testing"

	"proof-reward-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		name    string
		current models.SubmissionStatus
		intent  Intent
		want    models.SubmissionStatus
		wantErr error
	}{
		{"approve pending", models.SubmissionStatusPending, IntentApprove, models.SubmissionStatusApproved, nil},
		{"reject pending", models.SubmissionStatusPending, IntentReject, models.SubmissionStatusRejected, nil},
		{"approve approved", models.SubmissionStatusApproved, IntentApprove, models.SubmissionStatusApproved, ErrAlreadyDecided},
		{"reject approved", models.SubmissionStatusApproved, IntentReject, models.SubmissionStatusApproved, ErrAlreadyDecided},
		{"approve rejected", models.SubmissionStatusRejected, IntentApprove, models.SubmissionStatusRejected, ErrAlreadyDecided},
		{"reject claimed", models.SubmissionStatusClaimed, IntentReject, models.SubmissionStatusClaimed, ErrAlreadyDecided},
		{"claim approved", models.SubmissionStatusApproved, IntentClaim, models.SubmissionStatusClaimed, nil},
		{"claim pending", models.SubmissionStatusPending, IntentClaim, models.SubmissionStatusPending, ErrNotApproved},
		{"claim rejected", models.SubmissionStatusRejected, IntentClaim, models.SubmissionStatusRejected, ErrNotApproved},
		{"claim claimed", models.SubmissionStatusClaimed, IntentClaim, models.SubmissionStatusClaimed, ErrAlreadyClaimed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextStatus(tt.current, tt.intent)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextStatus_UnknownIntent(t *testing.T) {
	_, err := NextStatus(models.SubmissionStatusPending, Intent("refund"))
	assert.ErrorIs(t, err, ErrInternal)
}

func TestAllowedFrom_MatchesNextStatus(t *testing.T) {
	for _, intent := range []Intent{IntentApprove, IntentReject, IntentClaim} {
		allowed := AllowedFrom(intent)
		for _, status := range models.AllSubmissionStatuses {
			_, err := NextStatus(status, intent)
			assert.Equal(t, err == nil, contains(allowed, status), "intent %s from %s", intent, status)
		}
	}
}

func TestTerminalStatusesHaveNoExit(t *testing.T) {
	for _, terminal := range []models.SubmissionStatus{models.SubmissionStatusRejected, models.SubmissionStatusClaimed} {
		for _, intent := range []Intent{IntentApprove, IntentReject, IntentClaim} {
			_, err := NextStatus(terminal, intent)
			assert.Error(t, err, "%s must be terminal for %s", terminal, intent)
		}
	}
}

func TestError_IsMatchesByCode(t *testing.T) {
	wrapped := ErrNotFound.Wrap(assert.AnError).WithMessage("custom")
	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.NotErrorIs(t, wrapped, ErrNotApproved)
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.Equal(t, "Submission not found", ErrNotFound.Message)

	failed := claimFailed("execution reverted", nil)
	assert.ErrorIs(t, failed, ErrClaimFailed)
	assert.Equal(t, "Smart contract transaction failed: execution reverted", failed.Message)

	assert.Equal(t, ErrInternal.Code, AsError(assert.AnError).Code)
	assert.Same(t, ErrAlreadyClaimed, AsError(ErrAlreadyClaimed))
}

func contains(list []models.SubmissionStatus, s models.SubmissionStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
