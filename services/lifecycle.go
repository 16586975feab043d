// services/lifecycle.go
package services

import "proof-reward-system/models"

// Intent is a requested change to a submission's lifecycle
type Intent string

const (
	IntentApprove Intent = "approve"
	IntentReject  Intent = "reject"
	IntentClaim   Intent = "claim"
)

// AllowedFrom lists the statuses from which intent may be applied.
// The repository puts this set in the WHERE clause of its conditional updates.
func AllowedFrom(intent Intent) []models.SubmissionStatus {
	switch intent {
	case IntentApprove, IntentReject:
		return []models.SubmissionStatus{models.SubmissionStatusPending}
	case IntentClaim:
		return []models.SubmissionStatus{models.SubmissionStatusApproved}
	}
	return nil
}

// NextStatus returns the status reached by applying intent to current, or the error
// explaining why the transition is illegal.
func NextStatus(current models.SubmissionStatus, intent Intent) (models.SubmissionStatus, error) {
	switch intent {
	case IntentApprove, IntentReject:
		if current != models.SubmissionStatusPending {
			return current, ErrAlreadyDecided
		}
		if intent == IntentApprove {
			return models.SubmissionStatusApproved, nil
		}
		return models.SubmissionStatusRejected, nil

	case IntentClaim:
		switch current {
		case models.SubmissionStatusApproved:
			return models.SubmissionStatusClaimed, nil
		case models.SubmissionStatusClaimed:
			return current, ErrAlreadyClaimed
		default:
			return current, ErrNotApproved
		}
	}
	return current, internalError(nil).WithMessage("unknown lifecycle intent " + string(intent))
}
