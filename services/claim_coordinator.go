// services/claim_coordinator.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"proof-reward-system/models"
	"proof-reward-system/utils"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	defaultDistributionTimeout = 60 * time.Second
	leaseReleaseTimeout        = 5 * time.Second
	lateRecordTimeout          = 10 * time.Second
)

// ClaimResult describes a reward that was transferred and recorded
type ClaimResult struct {
	WalletAddress string
	TxID          string
	Submission    *models.Submission
}

type ClaimCoordinatorConfig struct {
	// DistributionTimeout bounds one collaborator call, independently of the caller
	DistributionTimeout time.Duration
}

// ClaimCoordinator makes sure the reward transfer for a wallet happens at most once.
// Claims for one wallet are serialized by a lease; the conditional update in
// TryMarkClaimed is the final arbiter.
type ClaimCoordinator struct {
	store   SubmissionStore
	rewards RewardDistributor
	leases  LeaseManager
	events  EventPublisher
	metrics *Metrics
	clock   clockwork.Clock
	log     *zap.Logger

	distributionTimeout time.Duration
	inflight            sync.WaitGroup
}

func NewClaimCoordinator(
	store SubmissionStore,
	rewards RewardDistributor,
	leases LeaseManager,
	events EventPublisher,
	metrics *Metrics,
	clock clockwork.Clock,
	cfg ClaimCoordinatorConfig,
	log *zap.Logger,
) *ClaimCoordinator {
	if leases == nil {
		leases = NewMemoryLeaseManager()
	}
	if events == nil {
		events = NopEventPublisher{}
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DistributionTimeout <= 0 {
		cfg.DistributionTimeout = defaultDistributionTimeout
	}
	return &ClaimCoordinator{
		store:               store,
		rewards:             rewards,
		leases:              leases,
		events:              events,
		metrics:             metrics,
		clock:               clock,
		log:                 log.Named("claims"),
		distributionTimeout: cfg.DistributionTimeout,
	}
}

type claimOutcome struct {
	result *ClaimResult
	err    error
}

// Claim transfers the reward for an approved wallet and records it as claimed.
//
// If ctx ends while the transfer is running the caller gets ErrClaimPending; the attempt
// carries on detached, records its outcome and releases the lease on its own. A collaborator
// call abandoned on timeout keeps the lease until it returns, and a late success is still recorded.
func (c *ClaimCoordinator) Claim(ctx context.Context, rawWallet string) (*ClaimResult, error) {
	wallet, err := utils.NormalizeWallet(rawWallet)
	if err != nil {
		return nil, ErrInvalidAddress
	}

	lease, err := c.leases.Acquire(ctx, wallet)
	if err != nil {
		if errors.Is(err, ErrLeaseNotAcquired) {
			c.metrics.ClaimsTotal.WithLabelValues("in_progress").Inc()
			return nil, ErrClaimInProgress
		}
		c.log.Error("acquire claim lease", zap.String("wallet", wallet), zap.Error(err))
		return nil, internalError(err)
	}

	log := c.log.With(zap.String("wallet", wallet), zap.String("attempt_id", uuid.NewString()))

	// once the lease is held the attempt no longer depends on the caller staying
	detached := context.WithoutCancel(ctx)

	sub, err := c.store.Get(detached, wallet)
	if err != nil {
		c.release(lease, log)
		return nil, err
	}
	if _, err := NextStatus(sub.Status, IntentClaim); err != nil {
		c.release(lease, log)
		c.metrics.ClaimsTotal.WithLabelValues(claimOutcomeLabel(err)).Inc()
		return nil, err
	}

	outcome := make(chan claimOutcome, 1)
	c.inflight.Add(1)
	go c.attempt(detached, wallet, lease, log, outcome)

	select {
	case out := <-outcome:
		return out.result, out.err
	case <-ctx.Done():
		c.metrics.ClaimsTotal.WithLabelValues("pending").Inc()
		log.Warn("caller left before claim finished; attempt continues in background", zap.Error(ctx.Err()))
		return nil, ErrClaimPending
	}
}

// Wait blocks until detached attempts have finished or ctx ends
func (c *ClaimCoordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *ClaimCoordinator) attempt(ctx context.Context, wallet string, lease Lease, log *zap.Logger, outcome chan<- claimOutcome) {
	defer c.inflight.Done()

	result, late, err := c.distributeAndRecord(ctx, wallet, log)
	if late != nil {
		// the abandoned call may still move tokens; keep the wallet locked until it reports back
		c.inflight.Add(1)
		go c.settleLateResult(wallet, late, lease, log)
	} else {
		c.release(lease, log)
	}
	outcome <- claimOutcome{result: result, err: err}
}

// distributeAndRecord returns a non-nil late channel when the collaborator call was
// abandoned on timeout and its result is still outstanding.
func (c *ClaimCoordinator) distributeAndRecord(ctx context.Context, wallet string, log *zap.Logger) (*ClaimResult, <-chan claimCall, error) {
	start := c.clock.Now()
	res, late, err := c.distribute(ctx, wallet)
	c.metrics.DistributionDuration.Observe(c.clock.Since(start).Seconds())

	if err != nil {
		return nil, late, c.failed(ctx, wallet, err.Error(), err, log)
	}
	if !res.Success {
		detail := res.Error
		if detail == "" {
			detail = "unknown error"
		}
		return nil, nil, c.failed(ctx, wallet, detail, nil, log)
	}
	if res.TxID == "" {
		c.metrics.ReconciliationGaps.Inc()
		log.Error("reward collaborator reported success without a transaction id; not recording claim")
		return nil, nil, c.failed(ctx, wallet, "reward collaborator returned no transaction id", nil, log)
	}

	sub, err := c.store.TryMarkClaimed(ctx, wallet, res.TxID)
	if err != nil {
		c.metrics.ReconciliationGaps.Inc()
		if errors.Is(err, ErrAlreadyClaimed) {
			c.metrics.ClaimsTotal.WithLabelValues("already_claimed").Inc()
			log.Warn("transfer completed for a wallet that was already claimed", zap.String("tx_hash", res.TxID))
			return nil, nil, ErrAlreadyClaimed
		}
		c.metrics.ClaimsTotal.WithLabelValues("unrecorded").Inc()
		log.Error("transfer completed but claim could not be recorded",
			zap.String("tx_hash", res.TxID),
			zap.Error(err),
		)
		return nil, nil, internalError(err)
	}

	c.metrics.ClaimsTotal.WithLabelValues("claimed").Inc()
	log.Info("reward claimed", zap.String("tx_hash", res.TxID))
	publishEvent(ctx, c.events, c.log, NewSubmissionEvent(c.clock, EventSubmissionClaimed, sub))

	return &ClaimResult{WalletAddress: wallet, TxID: res.TxID, Submission: sub}, nil, nil
}

// distribute bounds the collaborator call by distributionTimeout even if it ignores ctx,
// and turns a panic into an error. On timeout the call keeps running and its result
// arrives on the returned channel.
func (c *ClaimCoordinator) distribute(ctx context.Context, wallet string) (DistributionResult, <-chan claimCall, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.distributionTimeout)

	done := make(chan claimCall, 1)
	go func() {
		defer cancel()
		var call claimCall
		defer func() {
			if r := recover(); r != nil {
				call = claimCall{err: fmt.Errorf("reward distributor panicked: %v", r)}
			}
			done <- call
		}()
		call.result, call.err = c.rewards.DistributeReward(callCtx, wallet, true)
	}()

	select {
	case call := <-done:
		return call.result, nil, call.err
	case <-callCtx.Done():
		return DistributionResult{}, done, fmt.Errorf("reward distribution timed out after %s", c.distributionTimeout)
	}
}

type claimCall struct {
	result DistributionResult
	err    error
}

// settleLateResult records a transfer that completed after its attempt was given up,
// then releases the wallet's lease.
func (c *ClaimCoordinator) settleLateResult(wallet string, late <-chan claimCall, lease Lease, log *zap.Logger) {
	defer c.inflight.Done()
	defer c.release(lease, log)

	call := <-late
	if call.err != nil || !call.result.Success {
		log.Info("abandoned reward call finished without a transfer")
		return
	}
	if call.result.TxID == "" {
		c.metrics.ReconciliationGaps.Inc()
		log.Error("late reward transfer reported no transaction id; record left approved")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), lateRecordTimeout)
	defer cancel()

	sub, err := c.store.TryMarkClaimed(ctx, wallet, call.result.TxID)
	switch {
	case err == nil:
		c.metrics.ClaimsTotal.WithLabelValues("claimed_late").Inc()
		log.Warn("late reward transfer recorded", zap.String("tx_hash", call.result.TxID))
		publishEvent(ctx, c.events, c.log, NewSubmissionEvent(c.clock, EventSubmissionClaimed, sub))
	case errors.Is(err, ErrAlreadyClaimed):
		c.metrics.ReconciliationGaps.Inc()
		log.Warn("late reward transfer for a wallet that was already claimed", zap.String("tx_hash", call.result.TxID))
	default:
		c.metrics.ReconciliationGaps.Inc()
		log.Error("late reward transfer could not be recorded",
			zap.String("tx_hash", call.result.TxID),
			zap.Error(err),
		)
	}
}

func (c *ClaimCoordinator) failed(ctx context.Context, wallet, detail string, cause error, log *zap.Logger) error {
	c.metrics.ClaimsTotal.WithLabelValues("failed").Inc()
	log.Warn("reward distribution failed", zap.String("detail", detail))

	ev := NewSubmissionEvent(c.clock, EventClaimFailed, nil)
	ev.WalletAddress = wallet
	ev.Status = models.SubmissionStatusApproved
	ev.Detail = detail
	publishEvent(ctx, c.events, c.log, ev)

	return claimFailed(detail, cause)
}

func (c *ClaimCoordinator) release(lease Lease, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), leaseReleaseTimeout)
	defer cancel()
	if err := lease.Release(ctx); err != nil {
		log.Warn("release claim lease", zap.Error(err))
	}
}

func claimOutcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrNotApproved):
		return "not_approved"
	default:
		return "invalid"
	}
}
