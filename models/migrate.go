// models/migrate.go
package models

import (
	"fmt"

	"gorm.io/gorm"
)

// LegacyUnrecordedTxHash marks rows the previous service flagged as claimed without storing a hash.
const LegacyUnrecordedTxHash = "unrecorded"

// indexedFields are the Submission fields carrying a non-unique index tag
var indexedFields = []string{"SubmittedAt", "Status"}

// Migrate brings the submissions table up to date. A missing table is created; an existing one
// only ever gains columns and indexes, so rows written by older deployments stay readable.
func Migrate(db *gorm.DB) error {
	m := db.Migrator()

	if !m.HasTable(&Submission{}) {
		if err := db.AutoMigrate(&Submission{}); err != nil {
			return fmt.Errorf("create submissions table: %w", err)
		}
		return nil
	}

	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(&Submission{}); err != nil {
		return fmt.Errorf("parse submission schema: %w", err)
	}

	for _, field := range stmt.Schema.Fields {
		if field.DBName == "" || m.HasColumn(&Submission{}, field.DBName) {
			continue
		}
		if err := m.AddColumn(&Submission{}, field.Name); err != nil {
			return fmt.Errorf("add column %s: %w", field.DBName, err)
		}
	}

	for _, indexed := range indexedFields {
		if m.HasIndex(&Submission{}, indexed) {
			continue
		}
		if err := m.CreateIndex(&Submission{}, indexed); err != nil {
			return fmt.Errorf("create index on %s: %w", indexed, err)
		}
	}

	return backfillLegacyStatus(db)
}

// backfillLegacyStatus derives status for rows written with the old integer flags
// (approved, claimed). Only rows still at the column default are touched.
func backfillLegacyStatus(db *gorm.DB) error {
	m := db.Migrator()
	table := Submission{}.TableName()

	if err := db.Exec("UPDATE " + table + " SET updated_at = submitted_at WHERE updated_at IS NULL").Error; err != nil {
		return fmt.Errorf("backfill updated_at: %w", err)
	}

	if m.HasColumn(&Submission{}, "claimed") {
		err := db.Exec(
			"UPDATE "+table+" SET status = ?, transaction_hash = COALESCE(transaction_hash, ?), "+
				"approved_at = COALESCE(approved_at, claimed_at, submitted_at), "+
				"claimed_at = COALESCE(claimed_at, approved_at, submitted_at) "+
				"WHERE claimed = 1 AND status = ?",
			SubmissionStatusClaimed, LegacyUnrecordedTxHash, SubmissionStatusPending,
		).Error
		if err != nil {
			return fmt.Errorf("backfill claimed status: %w", err)
		}
	}

	if m.HasColumn(&Submission{}, "approved") {
		err := db.Exec(
			"UPDATE "+table+" SET status = ?, approved_at = COALESCE(approved_at, submitted_at) "+
				"WHERE approved = 1 AND status = ?",
			SubmissionStatusApproved, SubmissionStatusPending,
		).Error
		if err != nil {
			return fmt.Errorf("backfill approved status: %w", err)
		}

		err = db.Exec(
			"UPDATE "+table+" SET status = ? WHERE approved = 0 AND moderator_notes IS NOT NULL AND status = ?",
			SubmissionStatusRejected, SubmissionStatusPending,
		).Error
		if err != nil {
			return fmt.Errorf("backfill rejected status: %w", err)
		}
	}

	return nil
}
