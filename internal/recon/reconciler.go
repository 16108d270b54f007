// Package recon turns detection events and manual corrections into
// consistent vessel State records.
package recon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/your-org/marina/internal/models"
	"github.com/your-org/marina/internal/observability"
)

// ErrInvalidUpdate marks a correction that would break a state invariant.
var ErrInvalidUpdate = errors.New("invalid update")

// StateStore is the persistence slice the reconciler needs.
type StateStore interface {
	CreateState(ctx context.Context, st *models.State) error
	GetState(ctx context.Context, id int64) (*models.State, error)
	UpdateState(ctx context.Context, st *models.State) error
	ListOpenStates(ctx context.Context) ([]models.State, error)
}

// Reconciler applies the configured policy to incoming passes and serializes
// every read-modify-write on a State behind a per-id lock.
type Reconciler struct {
	store               StateStore
	policy              Policy
	defaultTimeInMarina int
	locks               *keyedMutex
	now                 func() time.Time
}

func New(store StateStore, policy Policy, defaultTimeInMarina int) *Reconciler {
	return &Reconciler{
		store:               store,
		policy:              policy,
		defaultTimeInMarina: defaultTimeInMarina,
		locks:               newKeyedMutex(),
		now:                 time.Now,
	}
}

// OpenOrAttach decides whether the pass starts a new visit or completes an
// open one. Returns nil when the policy ignores the pass.
func (r *Reconciler) OpenOrAttach(ctx context.Context, pass *models.BoatPass) (*models.State, error) {
	timer := prometheus.NewTimer(observability.ReconcileDuration)
	defer timer.ObserveDuration()

	candidates, err := r.store.ListOpenStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open states: %w", err)
	}

	decision := r.policy.Decide(pass, candidates)
	switch decision.Action {
	case ActionOpenNew:
		return r.openNew(ctx, pass)
	case ActionAttachAsLast:
		return r.attachAsLast(ctx, pass, decision.Candidate.ID)
	default:
		slog.Debug("pass ignored by reconciliation policy", "boat_pass_id", pass.ID)
		return nil, nil
	}
}

func (r *Reconciler) openNew(ctx context.Context, pass *models.BoatPass) (*models.State, error) {
	now := r.now()
	ts := pass.Timestamp
	timeInMarina := r.defaultTimeInMarina

	st := &models.State{
		// Observed once, duration unknown: arrival and departure both start
		// at the pass timestamp until a closing pass says otherwise.
		ArrivalTime:            &ts,
		DepartureTime:          &ts,
		BestDetectedBoatLength: pass.BoatLength,
		PaymentStatus:          models.PaymentStatusUnpaid,
		TimeInMarina:           &timeInMarina,
		StateOfBoat:            models.StateOfBoatTransiting,
		EditTimestamp:          &now,
		FirstBoatPassID:        &pass.ID,
	}
	if pass.DetectedIdentifier != "" {
		identifier := pass.DetectedIdentifier
		st.BestDetectedIdentifier = &identifier
	}

	if err := r.store.CreateState(ctx, st); err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}

	observability.StatesOpened.Inc()
	slog.Info("opened new vessel state", "state_id", st.ID, "boat_pass_id", pass.ID,
		"identifier", pass.DetectedIdentifier)
	return st, nil
}

func (r *Reconciler) attachAsLast(ctx context.Context, pass *models.BoatPass, stateID int64) (*models.State, error) {
	unlock := r.locks.lock(stateID)
	defer unlock()

	// Re-read under the lock: the candidate snapshot may be stale.
	st, err := r.store.GetState(ctx, stateID)
	if err != nil {
		return nil, err
	}
	if st.LastBoatPassID != nil {
		// Closed since the decision was made. Open a fresh visit instead of
		// overwriting someone else's departure.
		return r.openNew(ctx, pass)
	}

	now := r.now()
	departure := pass.Timestamp
	st.LastBoatPassID = &pass.ID
	st.StateOfBoat = models.StateOfBoatMoored
	if st.ArrivalTime != nil && departure.Before(*st.ArrivalTime) {
		// A departure observed before the arrival is anomalous; clamp to keep
		// the departure-after-arrival invariant and flag for review.
		departure = *st.ArrivalTime
		st.WeirdState = true
	}
	st.DepartureTime = &departure
	if st.ArrivalTime != nil {
		minutes := int(departure.Sub(*st.ArrivalTime) / time.Minute)
		st.TimeInMarina = &minutes
	}
	if pass.DetectedIdentifier != "" {
		current := ""
		if st.BestDetectedIdentifier != nil {
			current = *st.BestDetectedIdentifier
		}
		best := betterIdentifier(current, pass.DetectedIdentifier)
		st.BestDetectedIdentifier = &best
	}
	st.EditTimestamp = &now

	if err := r.store.UpdateState(ctx, st); err != nil {
		return nil, fmt.Errorf("close state: %w", err)
	}

	observability.StatesClosed.Inc()
	slog.Info("closed vessel state", "state_id", st.ID, "boat_pass_id", pass.ID)
	return st, nil
}

// ApplyPayment updates payment_status and nothing else.
func (r *Reconciler) ApplyPayment(ctx context.Context, id int64, status models.PaymentStatus) (*models.State, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrInvalidUpdate, status)
	}
	return r.mutate(ctx, id, func(st *models.State) error {
		st.PaymentStatus = status
		return nil
	})
}

// ApplyIdentifier updates best_detected_identifier and nothing else. Used
// when an operator resolves an OCR ambiguity.
func (r *Reconciler) ApplyIdentifier(ctx context.Context, id int64, identifier string) (*models.State, error) {
	if identifier == "" {
		return nil, fmt.Errorf("%w: identifier must not be empty", ErrInvalidUpdate)
	}
	return r.mutate(ctx, id, func(st *models.State) error {
		st.BestDetectedIdentifier = &identifier
		return nil
	})
}

// ApplyPatch merges only the fields present in the patch; absent fields are
// left untouched.
func (r *Reconciler) ApplyPatch(ctx context.Context, id int64, patch models.StatePatch) (*models.State, error) {
	if patch.PaymentStatus != nil && !patch.PaymentStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrInvalidUpdate, *patch.PaymentStatus)
	}
	if patch.StateOfBoat != nil && !patch.StateOfBoat.Valid() {
		return nil, fmt.Errorf("%w: unknown state of boat %q", ErrInvalidUpdate, *patch.StateOfBoat)
	}
	return r.mutate(ctx, id, func(st *models.State) error {
		merged := patch.Apply(*st)
		if merged.LastBoatPassID != nil && merged.ArrivalTime != nil && merged.DepartureTime != nil &&
			merged.DepartureTime.Before(*merged.ArrivalTime) {
			return fmt.Errorf("%w: departure before arrival on a closed visit", ErrInvalidUpdate)
		}
		*st = merged
		return nil
	})
}

// mutate runs one read-modify-write critical section for a state id and
// refreshes the edit timestamp on success.
func (r *Reconciler) mutate(ctx context.Context, id int64, fn func(*models.State) error) (*models.State, error) {
	unlock := r.locks.lock(id)
	defer unlock()

	st, err := r.store.GetState(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(st); err != nil {
		return nil, err
	}

	now := r.now()
	st.EditTimestamp = &now

	if err := r.store.UpdateState(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}
