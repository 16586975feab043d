// services/submission_service.go
package services

import (
	"context"
	"net/url"
	"strings"

	"proof-reward-system/models"
	"proof-reward-system/utils"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type SubmitRequest struct {
	WalletAddress string `json:"walletAddress"`
	Name          string `json:"name"`
	ProofLink     string `json:"proofLink"`
}

// SubmissionService covers every operation except claiming
type SubmissionService struct {
	Store   SubmissionStore
	Events  EventPublisher
	Metrics *Metrics
	Clock   clockwork.Clock
	log     *zap.Logger
}

func NewSubmissionService(store SubmissionStore, events EventPublisher, metrics *Metrics, clock clockwork.Clock, log *zap.Logger) *SubmissionService {
	if events == nil {
		events = NopEventPublisher{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SubmissionService{
		Store:   store,
		Events:  events,
		Metrics: metrics,
		Clock:   clock,
		log:     log.Named("submissions"),
	}
}

// Submit records a new pending proof. A wallet may submit only once, ever.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (*models.Submission, error) {
	name := strings.TrimSpace(req.Name)
	proofLink := strings.TrimSpace(req.ProofLink)
	if strings.TrimSpace(req.WalletAddress) == "" || name == "" || proofLink == "" {
		return nil, ErrMissingFields
	}

	wallet, err := utils.NormalizeWallet(req.WalletAddress)
	if err != nil {
		return nil, ErrInvalidAddress
	}
	if !validProofLink(proofLink) {
		return nil, ErrInvalidProofLink
	}

	sub := &models.Submission{
		WalletAddress: wallet,
		Name:          name,
		ProofLink:     proofLink,
	}
	if err := s.Store.InsertIfAbsent(ctx, sub); err != nil {
		return nil, err
	}

	s.Metrics.SubmissionsTotal.Inc()
	s.log.Info("submission recorded", zap.String("wallet", wallet))
	s.publish(ctx, NewSubmissionEvent(s.Clock, EventSubmissionCreated, sub))
	return sub, nil
}

// Status returns the record for a wallet. Pure read.
func (s *SubmissionService) Status(ctx context.Context, wallet string) (*models.Submission, error) {
	return s.Store.Get(ctx, wallet)
}

func (s *SubmissionService) List(ctx context.Context) ([]models.Submission, error) {
	return s.Store.ListAll(ctx)
}

// ListApproved returns the claim queue
func (s *SubmissionService) ListApproved(ctx context.Context) ([]models.Submission, error) {
	return s.Store.ListApproved(ctx)
}

// Decide applies a moderator's approve or reject. Only pending records can be decided.
func (s *SubmissionService) Decide(ctx context.Context, wallet string, approved bool, notes string) (*models.Submission, error) {
	var notesPtr *string
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		notesPtr = &trimmed
	}

	sub, err := s.Store.TransitionApproval(ctx, wallet, approved, notesPtr)
	if err != nil {
		return nil, err
	}

	decision, event := "rejected", EventSubmissionRejected
	if approved {
		decision, event = "approved", EventSubmissionApproved
	}
	s.Metrics.DecisionsTotal.WithLabelValues(decision).Inc()
	s.log.Info("submission reviewed", zap.String("wallet", sub.WalletAddress), zap.String("decision", decision))
	s.publish(ctx, NewSubmissionEvent(s.Clock, event, sub))
	return sub, nil
}

func (s *SubmissionService) publish(ctx context.Context, ev SubmissionEvent) {
	publishEvent(ctx, s.Events, s.log, ev)
}

// publishEvent never fails the caller; the state change is already committed
func publishEvent(ctx context.Context, events EventPublisher, log *zap.Logger, ev SubmissionEvent) {
	if err := events.Publish(ctx, ev); err != nil {
		log.Warn("publish event failed",
			zap.String("type", string(ev.Type)),
			zap.String("wallet", ev.WalletAddress),
			zap.Error(err),
		)
	}
}

func validProofLink(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
