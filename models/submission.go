// models/submission.go
package models

import "time"

// SubmissionStatus is the lifecycle state of a submission record
type SubmissionStatus string

const (
	SubmissionStatusPending  SubmissionStatus = "pending"
	SubmissionStatusApproved SubmissionStatus = "approved"
	SubmissionStatusRejected SubmissionStatus = "rejected"
	SubmissionStatusClaimed  SubmissionStatus = "claimed"
)

// AllSubmissionStatuses lists every status in lifecycle order
var AllSubmissionStatuses = []SubmissionStatus{
	SubmissionStatusPending,
	SubmissionStatusApproved,
	SubmissionStatusRejected,
	SubmissionStatusClaimed,
}

func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionStatusPending, SubmissionStatusApproved, SubmissionStatusRejected, SubmissionStatusClaimed:
		return true
	}
	return false
}

// Submission is a learner's proof-of-completion, one row per canonical wallet address.
// Table name: submissions
type Submission struct {
	ID              uint             `gorm:"primaryKey;autoIncrement" json:"id"`
	WalletAddress   string           `gorm:"unique;not null" json:"walletAddress"`
	Name            string           `gorm:"not null" json:"name"`
	ProofLink       string           `gorm:"not null" json:"proofLink"`
	SubmittedAt     time.Time        `gorm:"index" json:"submittedAt"`
	Status          SubmissionStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	ModeratorNotes  *string          `json:"moderatorNotes"`
	ApprovedAt      *time.Time       `json:"approvedAt"`
	ClaimedAt       *time.Time       `json:"claimedAt"`
	TransactionHash *string          `json:"transactionHash"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

func (Submission) TableName() string {
	return "submissions"
}

// IsClaimed reports whether the reward for this record has been distributed and recorded
func (s *Submission) IsClaimed() bool {
	return s.Status == SubmissionStatusClaimed
}
