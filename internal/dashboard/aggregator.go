// Package dashboard computes derived operational counts over State records.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/your-org/marina/internal/models"
)

// Window is the rolling period the dashboard reports over. "Today" ends at
// the current instant, not at a calendar-day boundary.
const Window = 24 * time.Hour

// Store provides a consistent snapshot of states touching the window.
type Store interface {
	StatesSince(ctx context.Context, cutoff time.Time) ([]models.State, error)
}

type Snapshot struct {
	TodayArrived                      int `json:"today_arrived"`
	TodayDeparted                     int `json:"today_departed"`
	CurrentlyPresent                  int `json:"currently_present"`
	TodayArrivedUnresolvedIdentifier  int `json:"today_arrived_unresolved_identifier"`
	TodayDepartedUnresolvedIdentifier int `json:"today_departed_unresolved_identifier"`
	PresentUnresolvedIdentifier       int `json:"present_unresolved_identifier"`
	TodayArrivedPaid                  int `json:"today_arrived_paid"`
	TodayArrivedUnpaid                int `json:"today_arrived_unpaid"`
	GeneratedAt                       time.Time `json:"generated_at"`
}

type Aggregator struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Aggregator {
	return &Aggregator{store: store, now: time.Now}
}

// ComputeToday counts arrivals, departures and presence over the rolling
// window. Each count is an independent scan over one snapshot read, so all
// numbers describe the same underlying data.
func (a *Aggregator) ComputeToday(ctx context.Context) (*Snapshot, error) {
	now := a.now()
	cutoff := now.Add(-Window)

	states, err := a.store.StatesSince(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("snapshot states: %w", err)
	}

	snap := &Snapshot{GeneratedAt: now}

	for _, st := range states {
		if arrivedInWindow(st, cutoff) {
			snap.TodayArrived++
		}
	}
	for _, st := range states {
		if departedInWindow(st, cutoff) {
			snap.TodayDeparted++
		}
	}
	for _, st := range states {
		if present(st, cutoff) {
			snap.CurrentlyPresent++
		}
	}
	for _, st := range states {
		if arrivedInWindow(st, cutoff) && unresolved(st) {
			snap.TodayArrivedUnresolvedIdentifier++
		}
	}
	for _, st := range states {
		if departedInWindow(st, cutoff) && unresolved(st) {
			snap.TodayDepartedUnresolvedIdentifier++
		}
	}
	for _, st := range states {
		if present(st, cutoff) && unresolved(st) {
			snap.PresentUnresolvedIdentifier++
		}
	}
	for _, st := range states {
		if arrivedInWindow(st, cutoff) && st.PaymentStatus == models.PaymentStatusPaid {
			snap.TodayArrivedPaid++
		}
	}
	for _, st := range states {
		if arrivedInWindow(st, cutoff) && st.PaymentStatus == models.PaymentStatusUnpaid {
			snap.TodayArrivedUnpaid++
		}
	}

	return snap, nil
}

func arrivedInWindow(st models.State, cutoff time.Time) bool {
	return st.ArrivalTime != nil && st.ArrivalTime.After(cutoff)
}

func departedInWindow(st models.State, cutoff time.Time) bool {
	return st.LastBoatPassID != nil && st.DepartureTime != nil && st.DepartureTime.After(cutoff)
}

// present means the vessel arrived within the window and no departure pass
// has closed the visit.
func present(st models.State, cutoff time.Time) bool {
	return arrivedInWindow(st, cutoff) && st.LastBoatPassID == nil
}

func unresolved(st models.State) bool {
	return st.BestDetectedIdentifier != nil && models.HasUnresolvedIdentifier(*st.BestDetectedIdentifier)
}
