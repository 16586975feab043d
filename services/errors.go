// services/errors.go
package services

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ErrorKind groups errors by how a caller should react to them
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindNotFound      ErrorKind = "not_found"
	KindConflict      ErrorKind = "conflict"
	KindUnauthorized  ErrorKind = "unauthorized"
	KindCollaborator  ErrorKind = "collaborator"
	KindPending       ErrorKind = "pending"
	KindConfiguration ErrorKind = "configuration"
	KindInternal      ErrorKind = "internal"
)

// Error is the single error type crossing the services boundary. Handlers render
// Message and HTTPStatus; Cause stays server-side.
type Error struct {
	Kind       ErrorKind
	Code       string
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Code so wrapped copies still compare equal to the sentinels below
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap returns a copy carrying cause
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Cause = cause
	return &cp
}

// WithMessage returns a copy with a replaced client-facing message
func (e *Error) WithMessage(message string) *Error {
	cp := *e
	cp.Message = message
	return &cp
}

func newError(kind ErrorKind, code string, status int, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, HTTPStatus: status}
}

var (
	ErrInvalidAddress   = newError(KindValidation, "INVALID_ADDRESS", fiber.StatusBadRequest, "Invalid wallet address")
	ErrMissingFields    = newError(KindValidation, "MISSING_FIELDS", fiber.StatusBadRequest, "Missing required fields: walletAddress, name, and proofLink are required")
	ErrInvalidProofLink = newError(KindValidation, "INVALID_PROOF_LINK", fiber.StatusBadRequest, "proofLink must be an http or https URL")
	ErrInvalidBody      = newError(KindValidation, "INVALID_BODY", fiber.StatusBadRequest, "Invalid request body")

	ErrDuplicateSubmission = newError(KindConflict, "DUPLICATE_SUBMISSION", fiber.StatusBadRequest, "You have already submitted a proof")
	ErrAlreadyClaimed      = newError(KindConflict, "ALREADY_CLAIMED", fiber.StatusBadRequest, "Reward has already been claimed")
	ErrAlreadyDecided      = newError(KindConflict, "ALREADY_REVIEWED", fiber.StatusConflict, "Submission has already been reviewed")
	ErrClaimInProgress     = newError(KindConflict, "CLAIM_IN_PROGRESS", fiber.StatusConflict, "A claim for this wallet is already in progress")

	ErrNotFound    = newError(KindNotFound, "NOT_FOUND", fiber.StatusNotFound, "Submission not found")
	ErrNotApproved = newError(KindNotFound, "NOT_APPROVED", fiber.StatusNotFound, "No approved submission found for this wallet address")

	ErrUnauthorized            = newError(KindUnauthorized, "UNAUTHORIZED", fiber.StatusUnauthorized, "Unauthorized")
	ErrModerationNotConfigured = newError(KindConfiguration, "MODERATION_NOT_CONFIGURED", fiber.StatusInternalServerError, "Server not configured for moderation")

	ErrClaimFailed  = newError(KindCollaborator, "CLAIM_FAILED", fiber.StatusInternalServerError, "Smart contract transaction failed")
	ErrClaimPending = newError(KindPending, "CLAIM_PENDING", fiber.StatusAccepted, "Claim is still being processed; check the submission status shortly")

	ErrInternal = newError(KindInternal, "INTERNAL", fiber.StatusInternalServerError, "Internal server error")
)

// claimFailed builds the collaborator error shown to the learner, keeping the detail in the message
func claimFailed(detail string, cause error) *Error {
	e := ErrClaimFailed.WithMessage(fmt.Sprintf("%s: %s", ErrClaimFailed.Message, detail))
	if cause != nil {
		e.Cause = cause
	}
	return e
}

// internalError wraps an unexpected failure; the cause is logged, never rendered
func internalError(cause error) *Error {
	return ErrInternal.Wrap(cause)
}

// AsError extracts a *Error from err, falling back to ErrInternal
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return internalError(err)
}
